package rtp

import (
	"testing"
	"time"

	"github.com/rocwire/streamcore/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *pool.Pool {
	t.Helper()
	p, err := pool.New(pool.Config{ChunkSize: 1500, Capacity: 16})
	require.NoError(t, err)
	return p
}

func TestComposeParseRoundTrip(t *testing.T) {
	p := newTestPool(t)
	composer := NewComposer(p)
	parser := NewParser()

	pkt, payloadBuf, err := composer.Prepare(4, 0)
	require.NoError(t, err)
	copy(payloadBuf, []byte{1, 2, 3, 4})

	pkt.RTP.SourceID = 0xAABBCCDD
	pkt.RTP.Seqnum = 42
	pkt.RTP.StreamTimestamp = 123456
	pkt.RTP.PayloadType = 10
	pkt.RTP.Marker = true

	require.NoError(t, composer.Compose(pkt))
	assert.True(t, pkt.Composed())

	wire := pkt.Slice().Bytes()[:HeaderSize+4]
	parsed, err := parser.Parse(wire, pkt.Slice())
	require.NoError(t, err)

	assert.Equal(t, pkt.RTP.SourceID, parsed.RTP.SourceID)
	assert.Equal(t, pkt.RTP.Seqnum, parsed.RTP.Seqnum)
	assert.Equal(t, pkt.RTP.StreamTimestamp, parsed.RTP.StreamTimestamp)
	assert.Equal(t, pkt.RTP.PayloadType, parsed.RTP.PayloadType)
	assert.Equal(t, pkt.RTP.Marker, parsed.RTP.Marker)
	assert.Equal(t, []byte{1, 2, 3, 4}, parsed.RTP.Payload)
}

func TestComposeRejectsDoubleCompose(t *testing.T) {
	p := newTestPool(t)
	composer := NewComposer(p)

	pkt, _, err := composer.Prepare(4, 0)
	require.NoError(t, err)
	require.NoError(t, composer.Compose(pkt))

	err = composer.Compose(pkt)
	assert.Error(t, err)
}

func TestParseRejectsShortPacket(t *testing.T) {
	parser := NewParser()
	_, err := parser.Parse([]byte{1, 2, 3}, nil)
	assert.Error(t, err)
}

func TestSequencerAdvancesMonotonically(t *testing.T) {
	id, err := NewIdentityWithProvider(fixedSSRCProvider{ssrc: 7})
	require.NoError(t, err)

	seq, err := NewSequencer(id)
	require.NoError(t, err)

	startSeqnum := seq.seqnum
	startTS := seq.timestamp

	for i := 0; i < 5; i++ {
		p, _, err := NewComposer(newTestPool(t)).Prepare(0, 0)
		require.NoError(t, err)
		seq.Next(p, 160, time.Unix(0, int64(i+1)), 10*time.Millisecond)
		assert.Equal(t, startSeqnum+uint16(i), p.RTP.Seqnum)
		assert.Equal(t, startTS+uint32(i*160), p.RTP.StreamTimestamp)
		assert.Equal(t, uint32(7), p.RTP.SourceID)
	}
}

type fixedSSRCProvider struct{ ssrc uint32 }

func (f fixedSSRCProvider) GenerateSSRC() (uint32, error) { return f.ssrc, nil }
