package audio

import (
	"testing"
	"time"

	"github.com/rocwire/streamcore/format"
	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/rtp"
	"github.com/rocwire/streamcore/status"
	"github.com/stretchr/testify/require"
)

func testMonoSpec() format.SampleSpec {
	return format.SampleSpec{
		SampleRate: 1000, Layout: format.ChannelLayoutMono, NumChannels: 1,
		Format: format.SampleFormatPCMSigned, BitWidth: 16, Order: format.ByteOrderBig,
	}
}

func monoCodec(t *testing.T, spec format.SampleSpec) (rtp.Encoder, rtp.Decoder) {
	t.Helper()
	entry, ok := rtp.NewRegistry().Lookup(11)
	require.True(t, ok)
	return entry.NewEncoder(spec), entry.NewDecoder(spec)
}

func makeDecodablePacket(t *testing.T, spec format.SampleSpec, encoder rtp.Encoder, startTS uint32, samples []float32) *packet.Packet {
	t.Helper()
	buf := make([]byte, encoder.EncodedBytes(len(samples)/spec.NumChannels))
	require.NoError(t, encoder.Encode(buf, samples))

	pkt := packet.New(packet.FlagRTP|packet.FlagAudio, nil)
	pkt.RTP = &packet.RTPFields{
		StreamTimestamp: startTS,
		Duration:        spec.NumSamplesToNs(uint64(len(samples) / spec.NumChannels)),
		Payload:         buf,
	}
	return pkt
}

func TestStreamerStartsWaitingAndEmitsSilence(t *testing.T) {
	spec := testMonoSpec()
	_, decoder := monoCodec(t, spec)
	s := NewStreamer(spec, decoder, 0, false)
	require.Equal(t, StateWaiting, s.State())

	frame, code := s.Pull(time.Now(), 10)
	require.Equal(t, status.Ok, code)
	require.True(t, frame.HasFlag(format.FlagHasGaps))
	for _, v := range frame.Samples {
		require.Zero(t, v)
	}
}

func TestStreamerPlaysBackPushedSamplesInOrder(t *testing.T) {
	spec := testMonoSpec()
	encoder, decoder := monoCodec(t, spec)
	s := NewStreamer(spec, decoder, 0, false)

	now := time.Now()
	samples := []float32{0.5, 0.25, -0.5, -0.25, 0.1}
	pkt := makeDecodablePacket(t, spec, encoder, 0, samples)
	require.NoError(t, s.Push(pkt, now))
	require.Equal(t, StatePlaying, s.State())

	frame, code := s.Pull(now, len(samples))
	require.Equal(t, status.Ok, code)
	require.True(t, frame.HasFlag(format.FlagSignalPresent))
	require.False(t, frame.HasFlag(format.FlagHasGaps))
	for i, want := range samples {
		require.InDelta(t, want, frame.Samples[i], 0.01)
	}
}

func TestStreamerConcealsGapBetweenPackets(t *testing.T) {
	spec := testMonoSpec()
	encoder, decoder := monoCodec(t, spec)
	s := NewStreamer(spec, decoder, 0, false)

	now := time.Now()
	first := makeDecodablePacket(t, spec, encoder, 0, []float32{0.3, 0.3})
	require.NoError(t, s.Push(first, now))

	// Leave a 3-sample gap before the next packet at timestamp 5.
	second := makeDecodablePacket(t, spec, encoder, 5, []float32{0.4, 0.4})
	require.NoError(t, s.Push(second, now))

	frame, code := s.Pull(now, 7)
	require.Equal(t, status.Ok, code)
	require.True(t, frame.HasFlag(format.FlagHasGaps))
	require.Greater(t, s.GapCount(), uint64(0))
}

func TestStreamerDropsLatePacketBehindCursor(t *testing.T) {
	spec := testMonoSpec()
	encoder, decoder := monoCodec(t, spec)
	s := NewStreamer(spec, decoder, 0, false)

	now := time.Now()
	first := makeDecodablePacket(t, spec, encoder, 10, []float32{0.2, 0.2, 0.2, 0.2, 0.2})
	require.NoError(t, s.Push(first, now))
	_, _ = s.Pull(now, 5)

	late := makeDecodablePacket(t, spec, encoder, 0, []float32{0.9, 0.9})
	require.NoError(t, s.Push(late, now))
	require.EqualValues(t, 1, s.LateCount())
}

func TestStreamerTerminatesAfterWatchdogTimeout(t *testing.T) {
	spec := testMonoSpec()
	encoder, decoder := monoCodec(t, spec)
	s := NewStreamer(spec, decoder, 20*time.Millisecond, false)

	now := time.Now()
	pkt := makeDecodablePacket(t, spec, encoder, 0, []float32{0.1, 0.1})
	require.NoError(t, s.Push(pkt, now))

	later := now.Add(21 * time.Millisecond)
	_, code := s.Pull(later, 2)
	require.Equal(t, status.Finish, code)
	require.Equal(t, StateTerminated, s.State())

	// Subsequent pulls keep reporting terminal silence.
	frame, code := s.Pull(later.Add(time.Millisecond), 2)
	require.Equal(t, status.Finish, code)
	for _, v := range frame.Samples {
		require.Zero(t, v)
	}
}

func TestStreamerRejectsPacketWithoutRTPFields(t *testing.T) {
	spec := testMonoSpec()
	_, decoder := monoCodec(t, spec)
	s := NewStreamer(spec, decoder, 0, false)

	pkt := packet.New(packet.FlagAudio, nil)
	require.Error(t, s.Push(pkt, time.Now()))
}
