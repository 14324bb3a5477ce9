package audio

import (
	"testing"
	"time"

	"github.com/rocwire/streamcore/format"
	"github.com/rocwire/streamcore/pool"
	"github.com/rocwire/streamcore/rtp"
	"github.com/stretchr/testify/require"
)

func newTestPacketizer(t *testing.T) (*Packetizer, format.SampleSpec) {
	t.Helper()
	spec := format.SampleSpec{
		SampleRate: 44100, Layout: format.ChannelLayoutStereo, NumChannels: 2,
		Format: format.SampleFormatPCMSigned, BitWidth: 16, Order: format.ByteOrderBig,
	}
	p, err := pool.New(pool.Config{ChunkSize: 1500, Capacity: 64})
	require.NoError(t, err)
	composer := rtp.NewComposer(p)
	registry := rtp.NewRegistry()
	entry, ok := registry.Lookup(10)
	require.True(t, ok)
	encoder := entry.NewEncoder(spec)

	identity, err := rtp.NewIdentity()
	require.NoError(t, err)
	seq, err := rtp.NewSequencer(identity)
	require.NoError(t, err)

	pz, err := NewPacketizer(WrapEmitter(WrapComposer(composer)), encoder, seq, spec, 10*time.Millisecond)
	require.NoError(t, err)
	return pz, spec
}

func TestPacketizerEmitsFixedSizePackets(t *testing.T) {
	pz, spec := newTestPacketizer(t)

	samplesPerPacket := int(spec.NsToNumSamples(10 * time.Millisecond))
	frame := &format.Frame{
		Samples:     make([]float32, samplesPerPacket*spec.NumChannels),
		CaptureTime: time.Now(),
	}

	pkts, err := pz.Push(frame)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	require.Len(t, pkts[0].RTP.Payload, samplesPerPacket*spec.NumChannels*spec.BytesPerSample())
	require.EqualValues(t, 1, pz.EncodedPackets())
	require.Greater(t, pz.PayloadBytes(), uint64(0))
}

func TestPacketizerBuffersPartialFramesAcrossPush(t *testing.T) {
	pz, spec := newTestPacketizer(t)
	samplesPerPacket := int(spec.NsToNumSamples(10 * time.Millisecond))
	half := samplesPerPacket / 2

	frame1 := &format.Frame{Samples: make([]float32, half*spec.NumChannels), CaptureTime: time.Now()}
	pkts, err := pz.Push(frame1)
	require.NoError(t, err)
	require.Empty(t, pkts)

	frame2 := &format.Frame{Samples: make([]float32, (samplesPerPacket-half)*spec.NumChannels), CaptureTime: time.Now()}
	pkts, err = pz.Push(frame2)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
}

func TestPacketizerFlushPadsPartialPacketWithSilence(t *testing.T) {
	pz, spec := newTestPacketizer(t)
	samplesPerPacket := int(spec.NsToNumSamples(10 * time.Millisecond))

	frame := &format.Frame{Samples: make([]float32, (samplesPerPacket/2)*spec.NumChannels), CaptureTime: time.Now()}
	pkts, err := pz.Push(frame)
	require.NoError(t, err)
	require.Empty(t, pkts)

	flushed, err := pz.Flush()
	require.NoError(t, err)
	require.Len(t, flushed, 1)

	again, err := pz.Flush()
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestPacketizerPayloadSizeMatchesEncodedBytes(t *testing.T) {
	pz, spec := newTestPacketizer(t)
	samplesPerPacket := int(spec.NsToNumSamples(10 * time.Millisecond))
	frame := &format.Frame{Samples: make([]float32, samplesPerPacket*spec.NumChannels), CaptureTime: time.Now()}

	pkts, err := pz.Push(frame)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	require.Len(t, pkts[0].RTP.Payload, samplesPerPacket*spec.NumChannels*spec.BytesPerSample())
}
