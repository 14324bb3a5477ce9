package rtp

import (
	"time"

	"github.com/rocwire/streamcore/format"
	"github.com/rocwire/streamcore/packet"
	"github.com/sirupsen/logrus"
)

// ValidatorConfig bounds the jump/wrap tolerances spec.md §4.10 defines.
type ValidatorConfig struct {
	MaxSeqnumJump   uint16
	MaxTimestampJump time.Duration
}

// DefaultValidatorConfig returns reasonable jump tolerances: a quarter
// of the seqnum space and one second of audio.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxSeqnumJump:    16384,
		MaxTimestampJump: time.Second,
	}
}

// Validator rejects packets whose RTP fields jump too far from the
// previously accepted packet, or whose source/payload-type identity
// changes (spec.md §4.10). It is stateful: it tracks the last accepted
// packet's RTP fields.
type Validator struct {
	cfg        ValidatorConfig
	spec       format.SampleSpec
	hasPrev    bool
	prev       packet.RTPFields
}

// NewValidator returns a Validator for a single-SSRC session using spec
// to convert timestamp deltas to nanoseconds.
func NewValidator(cfg ValidatorConfig, spec format.SampleSpec) *Validator {
	return &Validator{cfg: cfg, spec: spec}
}

// Validate reports whether next is acceptable following the last accepted
// packet. On first call (no prior packet) it always accepts. Accepted
// packets must subsequently be reported via Accept so the validator's
// state advances; spec.md §4.10's "before" relation means an
// out-of-order-but-in-tolerance packet does not always replace prev —
// only a packet that the RTP wrap-aware ordering places after prev does
// (mirrors roc_rtp::Validator's compare-and-replace).
func (v *Validator) Validate(next *packet.RTPFields) bool {
	if !v.hasPrev {
		return true
	}
	return v.validate(v.prev, *next)
}

// Accept records next as the new reference point if it is "after" the
// current reference (wrap-aware), matching roc_rtp::Validator's
// prev_packet_rtp_.compare(*pp->rtp()) < 0 gate — out-of-order packets
// that passed Validate do not rewind the reference point.
func (v *Validator) Accept(next *packet.RTPFields) {
	if !v.hasPrev || seqnumIsBefore(v.prev.Seqnum, next.Seqnum) {
		v.hasPrev = true
		v.prev = *next
	}
}

func (v *Validator) validate(prev, next packet.RTPFields) bool {
	if prev.SourceID != next.SourceID {
		logrus.WithFields(logrus.Fields{
			"function": "Validator.validate",
			"prev":     prev.SourceID,
			"next":     next.SourceID,
		}).Debug("rtp validator: source id jump")
		return false
	}

	if prev.PayloadType != next.PayloadType {
		logrus.WithFields(logrus.Fields{
			"function": "Validator.validate",
			"prev":     prev.PayloadType,
			"next":     next.PayloadType,
		}).Debug("rtp validator: payload type jump")
		return false
	}

	snDist := seqnumDiff(next.Seqnum, prev.Seqnum)
	if snDist < 0 {
		snDist = -snDist
	}
	if uint16(snDist) > v.cfg.MaxSeqnumJump {
		logrus.WithFields(logrus.Fields{
			"function": "Validator.validate",
			"dist":     snDist,
			"max":      v.cfg.MaxSeqnumJump,
		}).Debug("rtp validator: too long seqnum jump")
		return false
	}

	tsDist := streamTimestampDiff(next.StreamTimestamp, prev.StreamTimestamp)
	if tsDist < 0 {
		tsDist = -tsDist
	}
	tsDistNs := v.spec.StreamTimestampDeltaToNs(uint32(tsDist))
	if tsDistNs > v.cfg.MaxTimestampJump {
		logrus.WithFields(logrus.Fields{
			"function": "Validator.validate",
			"dist_ns":  tsDistNs,
			"max":      v.cfg.MaxTimestampJump,
		}).Debug("rtp validator: too long timestamp jump")
		return false
	}

	if next.CaptureTimestamp < 0 {
		return false
	}
	if next.CaptureTimestamp == 0 && prev.CaptureTimestamp != 0 {
		return false
	}

	return true
}

// seqnumDiff computes (b-a) using the wrap-aware "before" relation
// (spec.md §4.10): the smaller-magnitude side of the 16-bit wrap wins.
func seqnumDiff(b, a uint16) int32 {
	return int32(int16(b - a))
}

// seqnumIsBefore reports whether a precedes b under 16-bit wraparound.
func seqnumIsBefore(a, b uint16) bool {
	return seqnumDiff(b, a) > 0
}

// streamTimestampDiff computes (b-a) for 32-bit wrap-aware timestamps.
func streamTimestampDiff(b, a uint32) int64 {
	return int64(int32(b - a))
}
