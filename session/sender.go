package session

import (
	"fmt"
	"time"

	"github.com/rocwire/streamcore/audio"
	"github.com/rocwire/streamcore/fec"
	"github.com/rocwire/streamcore/format"
	"github.com/rocwire/streamcore/interleave"
	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/pool"
	"github.com/rocwire/streamcore/rtcp"
	"github.com/rocwire/streamcore/rtp"
	"github.com/rocwire/streamcore/status"
	"github.com/sirupsen/logrus"
)

// FECConfig enables FEC protection on a sender or receiver session
// (spec.md §4.3-§4.5). A nil *FECConfig anywhere below disables FEC: the
// emitter/reader stage collapses to a direct composer/parser.
type FECConfig struct {
	Scheme   packet.SchemeID
	K, M     int
	Position fec.Position
}

// SenderConfig assembles one sender session's pipeline (spec.md §4.16).
type SenderConfig struct {
	// CaptureSpec is the sample spec frames arrive in from the sound
	// card; WireSpec is the payload type's registered spec. They may
	// differ only in channel layout (a ChannelMapper bridges them) — a
	// sample-rate mismatch is a construction error, since this layer
	// does no rate conversion on the send side (spec.md §4.12's
	// resampler is the receive-side clock-drift compensator).
	CaptureSpec format.SampleSpec
	WireSpec    format.SampleSpec

	PayloadType    uint8
	PacketDuration time.Duration

	// Registry looks up PayloadType's codec entry. Defaults to
	// rtp.NewRegistry()'s built-ins when nil.
	Registry *rtp.Registry
	Pool     *pool.Pool
	Identity *rtp.Identity

	FEC *FECConfig
	// InterleaveWindow > 0 enables the packet interleaver; for an
	// FEC-enabled session this should equal FEC.K+FEC.M so a whole
	// block is scattered across the window.
	InterleaveWindow int
	InterleaveSeed   int64

	// AudioWriter receives plain audio/FEC-source packets; RepairWriter
	// receives FEC-repair packets. RepairWriter may be nil when FEC is
	// disabled, or equal to AudioWriter to keep both on one endpoint.
	AudioWriter  PacketWriter
	RepairWriter PacketWriter
}

// SenderSession is one outbound audio stream's fully assembled pipeline:
// capture frame in, RTP/FEC/interleaved packets out over the transport
// (spec.md §4.16). Once WriteFrame returns a terminal status.Code, every
// subsequent call short-circuits to that same status without touching
// the pipeline again (spec.md §7 tier 2).
type SenderSession struct {
	cfg SenderConfig

	channelMapper *audio.ChannelMapper
	packetizer    *audio.Packetizer
	interleaver   *interleave.Interleaver // nil disables interleaving
	router        *OutboundRouter
	mapper        *rtp.TimestampMapper
	identity      *rtp.Identity

	failStatus status.Code
}

// writeInterleaved runs pkt through the interleaver if one is
// configured, or returns it unchanged as a single-element batch.
func (s *SenderSession) writeInterleaved(pkt *packet.Packet) []*packet.Packet {
	if s.interleaver == nil {
		return []*packet.Packet{pkt}
	}
	return s.interleaver.Write(pkt)
}

// flushInterleaved drains the interleaver's window, if any.
func (s *SenderSession) flushInterleaved() []*packet.Packet {
	if s.interleaver == nil {
		return nil
	}
	return s.interleaver.Flush()
}

// NewSenderSession validates cfg and assembles the outbound pipeline:
// packetizer -> (FEC writer or plain emitter) -> interleaver -> outbound
// router, in the order sender_session.cpp's create_transport_pipeline
// builds it (packet-writer chain from the transport endpoint inward).
func NewSenderSession(cfg SenderConfig) (*SenderSession, error) {
	if err := cfg.CaptureSpec.Validate(); err != nil {
		return nil, status.New(status.BadConfig, "sender: capture spec: %v", err)
	}
	if err := cfg.WireSpec.Validate(); err != nil {
		return nil, status.New(status.BadConfig, "sender: wire spec: %v", err)
	}
	if cfg.CaptureSpec.SampleRate != cfg.WireSpec.SampleRate {
		return nil, status.New(status.BadConfig, "sender: capture rate %d does not match wire rate %d (no send-side resampling)", cfg.CaptureSpec.SampleRate, cfg.WireSpec.SampleRate)
	}
	if cfg.Pool == nil || cfg.Identity == nil || cfg.AudioWriter == nil {
		return nil, status.New(status.BadConfig, "sender: pool, identity, and audio writer are required")
	}
	if cfg.FEC != nil && cfg.RepairWriter == nil {
		return nil, status.New(status.BadConfig, "sender: fec enabled but no repair writer configured")
	}

	registry := cfg.Registry
	if registry == nil {
		registry = rtp.NewRegistry()
	}
	entry, ok := registry.Lookup(cfg.PayloadType)
	if !ok {
		return nil, status.New(status.BadConfig, "sender: unregistered payload type %d", cfg.PayloadType)
	}
	encoder := entry.NewEncoder(cfg.WireSpec)

	composer := rtp.NewComposer(cfg.Pool)
	seq, err := rtp.NewSequencer(cfg.Identity)
	if err != nil {
		return nil, status.New(status.BadConfig, "sender: %v", err)
	}

	var emitter audio.Emitter
	if cfg.FEC != nil {
		fecComposer := fec.NewComposer(composer, cfg.FEC.Scheme, cfg.FEC.Position)
		writer, err := fec.NewWriter(fecComposer, cfg.FEC.Scheme, cfg.FEC.K, cfg.FEC.M)
		if err != nil {
			return nil, status.New(status.BadConfig, "sender: %v", err)
		}
		emitter = writer
	} else {
		emitter = audio.WrapEmitter(audio.WrapComposer(composer))
	}

	packetizer, err := audio.NewPacketizer(emitter, encoder, seq, cfg.WireSpec, cfg.PacketDuration)
	if err != nil {
		return nil, status.New(status.BadConfig, "sender: %v", err)
	}

	var interleaver *interleave.Interleaver
	if cfg.InterleaveWindow > 0 {
		interleaver, err = interleave.New(cfg.InterleaveWindow, cfg.InterleaveSeed)
		if err != nil {
			return nil, status.New(status.BadConfig, "sender: %v", err)
		}
	}

	router := NewOutboundRouter()
	if cfg.FEC != nil {
		router.AddRoute(packet.FlagRepair, cfg.RepairWriter)
	}
	router.AddRoute(packet.FlagAudio, cfg.AudioWriter)

	var mapper *audio.ChannelMapper
	if cfg.CaptureSpec.NumChannels != cfg.WireSpec.NumChannels {
		mapper = audio.NewChannelMapper(cfg.CaptureSpec, cfg.WireSpec)
	}

	return &SenderSession{
		cfg:           cfg,
		channelMapper: mapper,
		packetizer:    packetizer,
		interleaver:   interleaver,
		router:        router,
		mapper:        rtp.NewTimestampMapper(cfg.WireSpec),
		identity:      cfg.Identity,
	}, nil
}

// WriteFrame pushes one captured frame through the pipeline to the wire.
// Per spec.md §7 tier 2, any stage failure converts to status.Finish and
// is remembered: every later call returns the same terminal code without
// touching the pipeline again.
func (s *SenderSession) WriteFrame(frame *format.Frame) status.Code {
	if s.failStatus != status.Ok {
		return s.failStatus
	}

	in := frame
	if s.channelMapper != nil {
		mapped, err := s.channelMapper.Map(frame)
		if err != nil {
			return s.fail(err)
		}
		in = mapped
	}

	pkts, err := s.packetizer.Push(in)
	if err != nil {
		return s.fail(err)
	}
	if err := s.emit(pkts); err != nil {
		return s.fail(err)
	}
	return status.Ok
}

// Flush drains any partial packet held by the packetizer and the
// interleaver's window, for a clean session shutdown.
func (s *SenderSession) Flush() error {
	pkts, err := s.packetizer.Flush()
	if err != nil {
		return fmt.Errorf("session: sender: flush: %w", err)
	}
	if err := s.emit(pkts); err != nil {
		return err
	}
	return s.emitBatch(s.flushInterleaved())
}

func (s *SenderSession) emit(pkts []*packet.Packet) error {
	for _, pkt := range pkts {
		if pkt.RTP != nil && !pkt.Flags.Has(packet.FlagRepair) {
			s.mapper.Update(pkt.RTP.CaptureTimestamp, pkt.RTP.StreamTimestamp)
		}
		if err := s.emitBatch(s.writeInterleaved(pkt)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SenderSession) emitBatch(pkts []*packet.Packet) error {
	for _, out := range pkts {
		if err := s.router.Write(out); err != nil {
			return err
		}
	}
	return nil
}

func (s *SenderSession) fail(err error) status.Code {
	s.failStatus = status.Finish
	logrus.WithFields(logrus.Fields{
		"function": "SenderSession.WriteFrame",
		"error":    err.Error(),
	}).Error("session: sender: pipeline stage failed, session terminated")
	return s.failStatus
}

// BuildSenderReport produces this session's next outgoing RTCP SR,
// mapping now to a stream timestamp via the timestamp mapper learned
// from emitted packets (spec.md §4.14).
func (s *SenderSession) BuildSenderReport(now time.Time) ([]byte, error) {
	rtpTime, ok := s.mapper.Map(now)
	if !ok {
		return nil, status.New(status.NoData, "sender: no timestamp mapping yet")
	}
	info := rtcp.SenderInfo{
		SSRC:        s.identity.SSRC(),
		NTPTime:     rtcp.ToNTP(now),
		RTPTime:     rtpTime,
		PacketCount: uint32(s.packetizer.EncodedPackets()),
		OctetCount:  uint32(s.packetizer.PayloadBytes()),
	}
	return rtcp.BuildSenderReport(info, s.identity.CNAME(), nil)
}
