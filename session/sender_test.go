package session

import (
	"testing"
	"time"

	"github.com/rocwire/streamcore/fec"
	"github.com/rocwire/streamcore/format"
	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/pool"
	"github.com/rocwire/streamcore/rtp"
	"github.com/rocwire/streamcore/status"
	"github.com/stretchr/testify/require"
)

func senderTestSpec() format.SampleSpec {
	return format.SampleSpec{
		SampleRate: 44100, Layout: format.ChannelLayoutStereo, NumChannels: 2,
		Format: format.SampleFormatPCMSigned, BitWidth: 16, Order: format.ByteOrderBig,
	}
}

func newTestSenderConfig(t *testing.T, audioW, repairW PacketWriter, fecCfg *FECConfig, interleaveWindow int) SenderConfig {
	t.Helper()
	p, err := pool.New(pool.Config{ChunkSize: 1500, Capacity: 256})
	require.NoError(t, err)
	identity, err := rtp.NewIdentity()
	require.NoError(t, err)

	return SenderConfig{
		CaptureSpec:      senderTestSpec(),
		WireSpec:         senderTestSpec(),
		PayloadType:      10,
		PacketDuration:   10 * time.Millisecond,
		Pool:             p,
		Identity:         identity,
		FEC:              fecCfg,
		InterleaveWindow: interleaveWindow,
		AudioWriter:      audioW,
		RepairWriter:     repairW,
	}
}

func fullTestFrame(spec format.SampleSpec, samplesPerPacket int, at time.Time) *format.Frame {
	return &format.Frame{Samples: make([]float32, samplesPerPacket*spec.NumChannels), CaptureTime: at}
}

func TestSenderSessionWritesPlainPacketToAudioRoute(t *testing.T) {
	audioW := &recordingWriter{}
	cfg := newTestSenderConfig(t, audioW, nil, nil, 0)
	s, err := NewSenderSession(cfg)
	require.NoError(t, err)

	spec := senderTestSpec()
	samplesPerPacket := int(spec.NsToNumSamples(cfg.PacketDuration))
	code := s.WriteFrame(fullTestFrame(spec, samplesPerPacket, time.Now()))
	require.Equal(t, status.Ok, code)
	require.Len(t, audioW.got, 1)
}

func TestSenderSessionRequiresRepairWriterWhenFECEnabled(t *testing.T) {
	cfg := newTestSenderConfig(t, &recordingWriter{}, nil, &FECConfig{Scheme: packet.SchemeReedSolomon, K: 4, M: 2, Position: fec.PositionHeader}, 6)
	_, err := NewSenderSession(cfg)
	require.Error(t, err)
	require.Equal(t, status.BadConfig, status.CodeOf(err))
}

func TestSenderSessionShortCircuitsAfterTerminalFailure(t *testing.T) {
	audioW := &recordingWriter{err: status.New(status.BadConfig, "boom")}
	cfg := newTestSenderConfig(t, audioW, nil, nil, 0)
	s, err := NewSenderSession(cfg)
	require.NoError(t, err)

	spec := senderTestSpec()
	samplesPerPacket := int(spec.NsToNumSamples(cfg.PacketDuration))
	frame := fullTestFrame(spec, samplesPerPacket, time.Now())

	code := s.WriteFrame(frame)
	require.Equal(t, status.Finish, code)

	// Once failed, the session must not touch the pipeline again: a
	// second call returns the same terminal status without the
	// audioW.err codepath ever running (still only one recorded attempt
	// as far as the writer is concerned, since the packetizer never
	// reaches it a second time).
	code2 := s.WriteFrame(frame)
	require.Equal(t, status.Finish, code2)
}

func TestSenderSessionEmitsRepairPacketsOnceBlockCompletes(t *testing.T) {
	const k, m = 4, 2
	audioW, repairW := &recordingWriter{}, &recordingWriter{}
	cfg := newTestSenderConfig(t, audioW, repairW, &FECConfig{Scheme: packet.SchemeReedSolomon, K: k, M: m, Position: fec.PositionHeader}, k+m)
	s, err := NewSenderSession(cfg)
	require.NoError(t, err)

	spec := senderTestSpec()
	samplesPerPacket := int(spec.NsToNumSamples(cfg.PacketDuration))

	for i := 0; i < k; i++ {
		code := s.WriteFrame(fullTestFrame(spec, samplesPerPacket, time.Now()))
		require.Equal(t, status.Ok, code)
	}
	require.NoError(t, s.Flush())

	require.Len(t, audioW.got, k)
	require.Len(t, repairW.got, m)
}

func TestSenderSessionBuildSenderReportNeedsAMappedPacketFirst(t *testing.T) {
	cfg := newTestSenderConfig(t, &recordingWriter{}, nil, nil, 0)
	s, err := NewSenderSession(cfg)
	require.NoError(t, err)

	_, err = s.BuildSenderReport(time.Now())
	require.Error(t, err)

	spec := senderTestSpec()
	samplesPerPacket := int(spec.NsToNumSamples(cfg.PacketDuration))
	require.Equal(t, status.Ok, s.WriteFrame(fullTestFrame(spec, samplesPerPacket, time.Now())))

	buf, err := s.BuildSenderReport(time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, buf)
}
