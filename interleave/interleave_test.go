package interleave

import (
	"testing"

	"github.com/rocwire/streamcore/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagPacket(tag int) *packet.Packet {
	pkt := packet.New(packet.FlagAudio, nil)
	pkt.RTP = &packet.RTPFields{Seqnum: uint16(tag)}
	return pkt
}

func TestInterleaverReleasesOnWindowFill(t *testing.T) {
	il, err := New(8, 42)
	require.NoError(t, err)

	var released []*packet.Packet
	for i := 0; i < 8; i++ {
		if out := il.Write(tagPacket(i)); out != nil {
			released = out
		}
	}
	require.Len(t, released, 8)

	seen := make(map[uint16]bool)
	for _, pkt := range released {
		seen[pkt.RTP.Seqnum] = true
	}
	for i := 0; i < 8; i++ {
		assert.True(t, seen[uint16(i)], "seqnum %d missing from released window", i)
	}
}

func TestInterleaverSameSeedSameOrder(t *testing.T) {
	const window, seed = 16, 7

	order := func() []uint16 {
		il, err := New(window, seed)
		require.NoError(t, err)
		var released []*packet.Packet
		for i := 0; i < window; i++ {
			if out := il.Write(tagPacket(i)); out != nil {
				released = out
			}
		}
		seqnums := make([]uint16, len(released))
		for i, pkt := range released {
			seqnums[i] = pkt.RTP.Seqnum
		}
		return seqnums
	}

	assert.Equal(t, order(), order())
}

func TestInterleaverFlushDrainsPartialWindow(t *testing.T) {
	il, err := New(10, 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		out := il.Write(tagPacket(i))
		assert.Nil(t, out, "window should not release before it fills")
	}

	out := il.Flush()
	require.Len(t, out, 3)
	seen := make(map[uint16]bool)
	for _, pkt := range out {
		seen[pkt.RTP.Seqnum] = true
	}
	for i := 0; i < 3; i++ {
		assert.True(t, seen[uint16(i)])
	}

	assert.Nil(t, il.Flush(), "flush on an empty window returns nil")
}
