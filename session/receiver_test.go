package session

import (
	"testing"
	"time"

	"github.com/rocwire/streamcore/fec"
	"github.com/rocwire/streamcore/format"
	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/pool"
	"github.com/rocwire/streamcore/rtp"
	"github.com/stretchr/testify/require"
)

func receiverTestSpec() format.SampleSpec {
	return format.SampleSpec{
		SampleRate: 44100, Layout: format.ChannelLayoutStereo, NumChannels: 2,
		Format: format.SampleFormatPCMSigned, BitWidth: 16, Order: format.ByteOrderBig,
	}
}

func newTestReceiverConfig(t *testing.T, fecCfg *FECConfig) ReceiverConfig {
	t.Helper()
	spec := receiverTestSpec()
	return ReceiverConfig{
		WireSpec:               spec,
		SinkSpec:               spec,
		PayloadType:            10,
		PacketDuration:         10 * time.Millisecond,
		FEC:                    fecCfg,
		ValidatorConfig:        rtp.DefaultValidatorConfig(),
		JitterLatency:          0,
		WatchdogTimeout:        time.Second,
		AimQueueSize:           1,
		MaxScalingDeviation:    0.1,
		ResamplerInternalFrame: 128,
	}
}

// testSourcePackets builds n plain (no FEC) composed RTP packets of
// silence, payload-type 10, spaced one packet duration apart.
func testSourcePackets(t *testing.T, n int) []*packet.Packet {
	t.Helper()
	spec := receiverTestSpec()
	p, err := pool.New(pool.Config{ChunkSize: 1500, Capacity: 256})
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

	samplesPerPacket := int(spec.NsToNumSamples(10 * time.Millisecond))
	payloadLen := encoder.EncodedBytes(samplesPerPacket)
	silence := make([]float32, samplesPerPacket*spec.NumChannels)

	var out []*packet.Packet
	base := time.Unix(1, 0)
	for i := 0; i < n; i++ {
		pkt, buf, err := composer.Prepare(payloadLen, 0)
		require.NoError(t, err)
		seq.Next(pkt, samplesPerPacket, base.Add(time.Duration(i)*10*time.Millisecond), spec.NumSamplesToNs(uint64(samplesPerPacket)))
		require.NoError(t, encoder.Encode(buf, silence))
		require.NoError(t, composer.Compose(pkt))
		out = append(out, pkt)
	}
	return out
}

func TestReceiverSessionPullAlwaysReturnsRequestedLength(t *testing.T) {
	rs, err := NewReceiverSession(newTestReceiverConfig(t, nil))
	require.NoError(t, err)

	for _, pkt := range testSourcePackets(t, 20) {
		rs.PushPacket(pkt, stubAddr("peer"))
	}
	require.EqualValues(t, 0, rs.DroppedInvalid())

	numSamplesPerChannel := 64
	now := time.Unix(1, 0)
	for i := 0; i < 10; i++ {
		frame, code := rs.Pull(now, numSamplesPerChannel)
		require.False(t, code.Terminal())
		require.Len(t, frame.Samples, numSamplesPerChannel*2)
		now = now.Add(time.Millisecond)
	}
}

func TestReceiverSessionDropsPacketWithoutRTPOrFEC(t *testing.T) {
	rs, err := NewReceiverSession(newTestReceiverConfig(t, nil))
	require.NoError(t, err)

	pkt := packet.New(packet.FlagAudio, nil)
	rs.PushPacket(pkt, stubAddr("peer"))
	require.EqualValues(t, 0, rs.DroppedInvalid())
}

func TestReceiverSessionRecoversPacketThroughFEC(t *testing.T) {
	const k, m = 4, 2
	spec := receiverTestSpec()
	p, err := pool.New(pool.Config{ChunkSize: 1500, Capacity: 256})
	require.NoError(t, err)
	composer := rtp.NewComposer(p)
	fecComposer := fec.NewComposer(composer, packet.SchemeReedSolomon, fec.PositionHeader)
	writer, err := fec.NewWriter(fecComposer, packet.SchemeReedSolomon, k, m)
	require.NoError(t, err)
	registry := rtp.NewRegistry()
	entry, ok := registry.Lookup(10)
	require.True(t, ok)
	encoder := entry.NewEncoder(spec)
	identity, err := rtp.NewIdentity()
	require.NoError(t, err)
	seq, err := rtp.NewSequencer(identity)
	require.NoError(t, err)

	samplesPerPacket := int(spec.NsToNumSamples(10 * time.Millisecond))
	payloadLen := encoder.EncodedBytes(samplesPerPacket)
	silence := make([]float32, samplesPerPacket*spec.NumChannels)
	base := time.Unix(1, 0)

	var onWire []*packet.Packet
	for i := 0; i < k; i++ {
		stamp := func(pkt *packet.Packet) {
			seq.Next(pkt, samplesPerPacket, base.Add(time.Duration(i)*10*time.Millisecond), spec.NumSamplesToNs(uint64(samplesPerPacket)))
		}
		source, repairs, err := writer.WriteSource(payloadLen, stamp, func(buf []byte) error {
			return encoder.Encode(buf, silence)
		})
		require.NoError(t, err)
		onWire = append(onWire, source)
		onWire = append(onWire, repairs...)
	}

	rs, err := NewReceiverSession(newTestReceiverConfig(t, &FECConfig{Scheme: packet.SchemeReedSolomon, K: k, M: m, Position: fec.PositionHeader}))
	require.NoError(t, err)

	const droppedIndex = 1
	for i, pkt := range onWire {
		if i == droppedIndex {
			pkt.Release()
			continue
		}
		rs.PushPacket(pkt, stubAddr("peer"))
	}

	require.EqualValues(t, 0, rs.DroppedInvalid())
}
