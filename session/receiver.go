package session

import (
	"fmt"
	"net"
	"time"

	"github.com/rocwire/streamcore/audio"
	"github.com/rocwire/streamcore/fec"
	"github.com/rocwire/streamcore/format"
	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/rtcp"
	"github.com/rocwire/streamcore/rtp"
	"github.com/rocwire/streamcore/status"
	"github.com/sirupsen/logrus"
)

// ReceiverConfig assembles one receiver session's pipeline (spec.md
// §4.16): UDP in -> parser -> (FEC block reader) -> validator -> jitter
// buffer -> streamer -> resampler -> channel mapper -> frames out. The
// resampler runs in the wire channel layout; channel mapping is applied
// to its output.
type ReceiverConfig struct {
	// WireSpec is the payload type's registered spec (post-decode);
	// SinkSpec is the sound-card format frames are delivered in. They
	// may differ in both channel layout (ChannelMapper) and sample rate
	// (Resampler, driven by the closed-loop frequency Estimator).
	WireSpec format.SampleSpec
	SinkSpec format.SampleSpec

	PayloadType    uint8
	PacketDuration time.Duration
	Registry       *rtp.Registry
	// CNAME identifies this receiver in its own RTCP SDES chunk.
	CNAME string

	FEC             *FECConfig
	ValidatorConfig rtp.ValidatorConfig
	JitterLatency   time.Duration
	WatchdogTimeout time.Duration

	AimQueueSize           uint32
	MaxScalingDeviation    float64
	ResamplerInternalFrame int
	BeepDebugConceal       bool
}

// blockAnchor reconstructs the RTP identity of a packet an FEC decoder
// recovers (the decoder only recovers payload bytes, not header fields
// that were never protected — see DESIGN.md's session package entry): it
// anchors symbol 0 of a block to the (seqnum, stream_timestamp) the
// first packet actually seen from that block implies, since every
// symbol in a block is a fixed-size packet spaced samplesPerPacket apart.
type blockAnchor struct {
	ssrc         uint32
	payloadType  uint8
	baseSeqnum   uint16
	baseStreamTS uint32
	// baseCaptureNs is symbol 0's capture_timestamp, or 0 when the
	// anchoring packet carried none.
	baseCaptureNs int64
}

// ReceiverSession is one inbound audio stream's fully assembled pipeline.
// It implements PacketSink so a SessionRouter can dispatch directly to
// it. Once a stage fails terminally, Pull short-circuits to that status
// without touching the pipeline again (spec.md §7 tier 2).
type ReceiverSession struct {
	cfg ReceiverConfig

	validator *rtp.Validator
	fecReader *fec.Reader // nil disables FEC
	delayer   *audio.Delayer
	streamer  *audio.Streamer
	estimator *audio.Estimator
	resampler *audio.Resampler
	mapper    *audio.ChannelMapper // wire -> sink, nil if layouts match
	feedback  *rtcp.FeedbackMonitor
	ssrc      uint32
	ssrcKnown bool

	samplesPerPacket int
	blockAnchors     map[uint16]blockAnchor

	outPending []float32
	failStatus status.Code
	lastAddr   net.Addr

	droppedInvalid uint64
}

// NewReceiverSession validates cfg and assembles the inbound pipeline.
func NewReceiverSession(cfg ReceiverConfig) (*ReceiverSession, error) {
	if err := cfg.WireSpec.Validate(); err != nil {
		return nil, status.New(status.BadConfig, "receiver: wire spec: %v", err)
	}
	if err := cfg.SinkSpec.Validate(); err != nil {
		return nil, status.New(status.BadConfig, "receiver: sink spec: %v", err)
	}
	if cfg.ResamplerInternalFrame <= 0 {
		return nil, status.New(status.BadConfig, "receiver: resampler_internal_frame must be positive")
	}
	if cfg.AimQueueSize == 0 || cfg.MaxScalingDeviation <= 0 {
		return nil, status.New(status.BadConfig, "receiver: aim_queue_size and max_scaling_deviation are required")
	}

	registry := cfg.Registry
	if registry == nil {
		registry = rtp.NewRegistry()
	}
	entry, ok := registry.Lookup(cfg.PayloadType)
	if !ok {
		return nil, status.New(status.BadConfig, "receiver: unregistered payload type %d", cfg.PayloadType)
	}
	decoder := entry.NewDecoder(cfg.WireSpec)

	samplesPerPacket := int(cfg.WireSpec.NsToNumSamples(cfg.PacketDuration))
	if samplesPerPacket <= 0 {
		return nil, status.New(status.BadConfig, "receiver: packet_duration yields zero samples at wire rate %d", cfg.WireSpec.SampleRate)
	}

	var fecReader *fec.Reader
	if cfg.FEC != nil {
		fecReader = fec.NewReader(cfg.FEC.Scheme)
	}

	estimator, err := audio.NewEstimator(cfg.AimQueueSize, cfg.MaxScalingDeviation)
	if err != nil {
		return nil, status.New(status.BadConfig, "receiver: %v", err)
	}
	resampler, err := audio.NewResampler(cfg.WireSpec, cfg.ResamplerInternalFrame)
	if err != nil {
		return nil, status.New(status.BadConfig, "receiver: %v", err)
	}

	var mapper *audio.ChannelMapper
	if cfg.WireSpec.NumChannels != cfg.SinkSpec.NumChannels {
		mapper = audio.NewChannelMapper(cfg.WireSpec, cfg.SinkSpec)
	}

	return &ReceiverSession{
		cfg:              cfg,
		validator:        rtp.NewValidator(cfg.ValidatorConfig, cfg.WireSpec),
		fecReader:        fecReader,
		delayer:          audio.NewDelayer(cfg.WireSpec, cfg.JitterLatency),
		streamer:         audio.NewStreamer(cfg.WireSpec, decoder, cfg.WatchdogTimeout, cfg.BeepDebugConceal),
		estimator:        estimator,
		resampler:        resampler,
		mapper:           mapper,
		feedback:         rtcp.NewFeedbackMonitor(cfg.WireSpec.SampleRate),
		samplesPerPacket: samplesPerPacket,
		blockAnchors:     make(map[uint16]blockAnchor),
	}, nil
}

// PushPacket admits one inbound packet parsed for this session. Per-
// packet failures are tier-1 local failures, never propagated (spec.md
// §7). Only validator rejections are counted (DroppedInvalid); a packet
// with neither RTP nor FEC fields, or a recovered packet whose block has
// no anchor, is dropped uncounted, and an FEC reader error is only logged.
func (s *ReceiverSession) PushPacket(pkt *packet.Packet, addr net.Addr) {
	if s.failStatus != status.Ok {
		pkt.Release()
		return
	}
	s.lastAddr = addr
	now := time.Now()

	if s.fecReader != nil {
		if err := s.fecReader.Push(pkt); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "ReceiverSession.PushPacket",
				"error":    err.Error(),
			}).Debug("session: receiver: fec push rejected packet")
			return
		}
		s.drainFEC(now)
		return
	}
	s.admit(pkt, now)
}

func (s *ReceiverSession) drainFEC(now time.Time) {
	for {
		pkt, ok, err := s.fecReader.Read()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "ReceiverSession.drainFEC",
				"error":    err.Error(),
			}).Debug("session: receiver: fec read failed on current symbol, skipping")
			s.fecReader.Skip()
			continue
		}
		if !ok {
			return
		}
		s.admit(pkt, now)
	}
}

func (s *ReceiverSession) admit(pkt *packet.Packet, now time.Time) {
	if pkt.RTP == nil {
		if pkt.FEC == nil {
			pkt.Release()
			return
		}
		fields := s.resolveRecovered(pkt)
		if fields == nil {
			pkt.Release()
			return
		}
		pkt.RTP = fields
	} else if pkt.FEC != nil {
		s.recordAnchor(pkt)
	}

	if !s.validator.Validate(pkt.RTP) {
		s.droppedInvalid++
		pkt.Release()
		return
	}
	s.validator.Accept(pkt.RTP)
	if !s.ssrcKnown {
		s.ssrc, s.ssrcKnown = pkt.RTP.SourceID, true
	}
	s.feedback.OnPacket(pkt.RTP.SourceID, pkt.RTP.Seqnum, pkt.RTP.StreamTimestamp, now)

	if err := s.delayer.Push(pkt); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ReceiverSession.admit",
			"error":    err.Error(),
		}).Debug("session: receiver: delayer rejected packet")
		return
	}

	for {
		p, ok := s.delayer.Pop()
		if !ok {
			break
		}
		if err := s.streamer.Push(p, now); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "ReceiverSession.admit",
				"error":    err.Error(),
			}).Debug("session: receiver: streamer rejected packet")
		}
	}
}

// recordAnchor remembers the (ssrc, seqnum, stream_timestamp) implied by
// symbol 0 of pkt's block, learned from this actually-received packet.
func (s *ReceiverSession) recordAnchor(pkt *packet.Packet) {
	esi := uint32(pkt.FEC.EncodingSymbolID)
	anchor := blockAnchor{
		ssrc:         pkt.RTP.SourceID,
		payloadType:  pkt.RTP.PayloadType,
		baseSeqnum:   pkt.RTP.Seqnum - uint16(esi),
		baseStreamTS: pkt.RTP.StreamTimestamp - esi*uint32(s.samplesPerPacket),
	}
	if pkt.RTP.CaptureTimestamp != 0 {
		duration := s.cfg.WireSpec.NumSamplesToNs(uint64(s.samplesPerPacket))
		anchor.baseCaptureNs = pkt.RTP.CaptureTimestamp - int64(esi)*int64(duration)
	}
	s.blockAnchors[pkt.FEC.SourceBlockNumber] = anchor
	if len(s.blockAnchors) > DefaultMaxBlockAnchors {
		s.pruneOldestAnchor(pkt.FEC.SourceBlockNumber)
	}
}

// DefaultMaxBlockAnchors bounds the anchor map so a session that never
// sees a source packet for some far-future block number can't grow it
// unboundedly; it only needs to span the FEC reader's own lookahead.
const DefaultMaxBlockAnchors = 2 * fec.DefaultMaxLookaheadBlocks

func (s *ReceiverSession) pruneOldestAnchor(current uint16) {
	var oldest uint16
	found := false
	for bn := range s.blockAnchors {
		dist := int(uint16(current - bn))
		if !found || dist > int(uint16(current-oldest)) {
			oldest, found = bn, true
		}
	}
	if found {
		delete(s.blockAnchors, oldest)
	}
}

// resolveRecovered fills in the RTP identity an FEC-recovered packet
// never carried, from the anchor recorded for its block.
func (s *ReceiverSession) resolveRecovered(pkt *packet.Packet) *packet.RTPFields {
	anchor, ok := s.blockAnchors[pkt.FEC.SourceBlockNumber]
	if !ok {
		return nil
	}
	esi := uint32(pkt.FEC.EncodingSymbolID)
	duration := s.cfg.WireSpec.NumSamplesToNs(uint64(s.samplesPerPacket))
	var capture int64
	if anchor.baseCaptureNs != 0 {
		capture = anchor.baseCaptureNs + int64(esi)*int64(duration)
	}
	return &packet.RTPFields{
		SourceID:         anchor.ssrc,
		PayloadType:      anchor.payloadType,
		Seqnum:           anchor.baseSeqnum + uint16(esi),
		StreamTimestamp:  anchor.baseStreamTS + esi*uint32(s.samplesPerPacket),
		Duration:         duration,
		CaptureTimestamp: capture,
		Payload:          pkt.FEC.Payload,
	}
}

// Pull produces exactly numSamplesPerChannel samples per channel in the
// sink's sample spec, resampled per the estimator's current freq_coeff
// and remapped to the sink's channel layout.
func (s *ReceiverSession) Pull(now time.Time, numSamplesPerChannel int) (*format.Frame, status.Code) {
	if s.failStatus != status.Ok {
		return s.silence(numSamplesPerChannel, now), s.failStatus
	}

	coeff := s.estimator.Update(uint32(s.delayer.Len() * s.samplesPerPacket))
	if err := s.resampler.SetScaling(s.cfg.WireSpec.SampleRate, s.cfg.SinkSpec.SampleRate, coeff); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ReceiverSession.Pull",
			"error":    err.Error(),
		}).Warn("session: receiver: resampler rejected scaling update")
	}

	// outPending holds resampled samples in wire-channel interleaving;
	// channel mapping to the sink layout happens once, after enough of
	// them have accumulated (format.Remap preserves samples-per-channel,
	// only changing interleaving width, so the wire-space sample count
	// is what numSamplesPerChannel always refers to).
	wantWire := numSamplesPerChannel * s.cfg.WireSpec.NumChannels
	for len(s.outPending) < wantWire {
		tile := make([]float32, s.cfg.ResamplerInternalFrame*s.cfg.WireSpec.NumChannels)
		produced, err := s.resampler.PopOutput(tile)
		if err != nil {
			s.failStatus = status.Finish
			return s.silence(numSamplesPerChannel, now), s.failStatus
		}
		if produced > 0 {
			s.outPending = append(s.outPending, tile[:produced*s.cfg.WireSpec.NumChannels]...)
			continue
		}

		frame, code := s.streamer.Pull(now, s.cfg.ResamplerInternalFrame)
		if code.Terminal() {
			s.failStatus = code
			break
		}
		tile = s.resampler.PushInput()
		copy(tile, frame.Samples)
		if err := s.resampler.CommitInput(tile); err != nil {
			s.failStatus = status.Finish
			break
		}
	}

	if len(s.outPending) < wantWire {
		return s.silence(numSamplesPerChannel, now), status.Ok
	}

	out := s.outPending[:wantWire]
	s.outPending = append([]float32(nil), s.outPending[wantWire:]...)

	frame := &format.Frame{Samples: out, CaptureTime: now, Duration: s.cfg.SinkSpec.NumSamplesToNs(uint64(numSamplesPerChannel))}
	if s.mapper != nil {
		mapped, err := s.mapper.Map(frame)
		if err == nil {
			frame = mapped
		}
	}
	return frame, status.Ok
}

func (s *ReceiverSession) silence(numSamplesPerChannel int, now time.Time) *format.Frame {
	return &format.Frame{
		Samples:     make([]float32, numSamplesPerChannel*s.cfg.SinkSpec.NumChannels),
		CaptureTime: now,
		Duration:    s.cfg.SinkSpec.NumSamplesToNs(uint64(numSamplesPerChannel)),
		Flags:       format.FlagHasGaps,
	}
}

// HandleControlPacket ingests a received compound RTCP packet destined
// for this session (e.g. a sender's SR), recording its sender-clock pair
// for the next RR and for diagnostics (spec.md §4.14).
func (s *ReceiverSession) HandleControlPacket(buf []byte, now time.Time) error {
	if _, err := s.feedback.OnCompoundPacket(buf, now); err != nil {
		return fmt.Errorf("session: receiver: control packet: %w", err)
	}
	return nil
}

// BuildReceiverReport produces this session's next outgoing RTCP RR for
// the stream it has seen packets from, if any.
func (s *ReceiverSession) BuildReceiverReport(now time.Time) ([]byte, error) {
	if !s.ssrcKnown {
		return nil, status.New(status.NoData, "receiver: no source seen yet")
	}
	block := s.feedback.BuildReceiverBlock(s.ssrc, now)
	return rtcp.BuildReceiverReport(s.ssrc, s.cfg.CNAME, []rtcp.ReceiverInfo{block})
}

// DroppedInvalid returns the count of packets the validator rejected.
func (s *ReceiverSession) DroppedInvalid() uint64 { return s.droppedInvalid }

// Close releases every packet still queued in the delayer and streamer.
func (s *ReceiverSession) Close() {
	s.delayer.Close()
	s.streamer.Close()
}
