package rtcp

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ReportInterval is the default spacing between generated RTCP reports,
// matching roc_audio/scaler.cpp's 5-second report cadence.
const ReportInterval = 5 * time.Second

// FeedbackMonitor is the receiver-side RTCP collaborator spec.md §2's
// data flow names ("RTCP arrivals feed the frequency estimator via the
// feedback monitor"): it ingests incoming compound RTCP packets, keeps
// per-remote-SSRC receive statistics and the sender's last-known
// (NTP, RTP timestamp) clock pair, and is the thing a session polls to
// build its own outgoing RR. The frequency estimator's freq_coeff
// itself is still driven by the jitter-buffer queue depth (spec.md
// §4.13's single stated input); this monitor supplies the diagnostic
// sender-clock mapping and the loss/jitter figures the session reports
// back, rather than a second estimator input — an explicit Open
// Question resolution recorded in DESIGN.md.
type FeedbackMonitor struct {
	sampleRate uint32
	stats      map[uint32]*ReceiveStats
	lastSender map[uint32]SenderInfo
}

// NewFeedbackMonitor returns a monitor for streams at sampleRate.
func NewFeedbackMonitor(sampleRate uint32) *FeedbackMonitor {
	return &FeedbackMonitor{
		sampleRate: sampleRate,
		stats:      make(map[uint32]*ReceiveStats),
		lastSender: make(map[uint32]SenderInfo),
	}
}

// streamStats returns (creating if needed) the stats tracker for ssrc.
func (m *FeedbackMonitor) streamStats(ssrc uint32) *ReceiveStats {
	s, ok := m.stats[ssrc]
	if !ok {
		s = NewReceiveStats(m.sampleRate)
		m.stats[ssrc] = s
	}
	return s
}

// OnPacket records a received RTP packet's sequence/timestamp for the
// loss and jitter figures the next RR will carry.
func (m *FeedbackMonitor) OnPacket(ssrc uint32, seq uint16, streamTimestamp uint32, arrival time.Time) {
	m.streamStats(ssrc).OnPacket(seq, streamTimestamp, arrival.UnixNano())
}

// OnCompoundPacket ingests a raw incoming RTCP packet: it records each
// SR's clock pair (for LSR/DLSR in the next RR and for diagnostics) and
// returns the parsed report for the caller to act on (e.g. feeding an
// SSRC collision check, or logging remote-reported loss).
func (m *FeedbackMonitor) OnCompoundPacket(buf []byte, now time.Time) (ParsedReport, error) {
	parsed, err := Parse(buf)
	if err != nil {
		return ParsedReport{}, err
	}
	for _, sr := range parsed.SenderInfos {
		m.streamStats(sr.SSRC).OnSenderReport(sr.NTPTime, now.UnixNano())
		m.lastSender[sr.SSRC] = sr
		logrus.WithFields(logrus.Fields{
			"function": "FeedbackMonitor.OnCompoundPacket",
			"ssrc":     sr.SSRC,
			"rtp_time": sr.RTPTime,
		}).Trace("rtcp: feedback monitor: sender report recorded")
	}
	return parsed, nil
}

// BuildReceiverBlock produces the ReceiverInfo block for ssrc to embed
// in this session's next outgoing RR, using the accumulated stats and
// the LSR/DLSR pair from the most recent SR.
func (m *FeedbackMonitor) BuildReceiverBlock(ssrc uint32, now time.Time) ReceiverInfo {
	s := m.streamStats(ssrc)
	lsr, dlsr, _ := s.LastSR(now.UnixNano())
	return ReceiverInfo{
		SSRC:               ssrc,
		FractionLost:       s.FractionLost(),
		CumulativeLost:     s.CumulativeLost(),
		ExtendedHighestSeq: s.ExtendedHighestSeq(),
		Jitter:             s.Jitter(),
		LastSR:             lsr,
		DelaySinceLastSR:   dlsr,
	}
}

// LastSenderInfo returns the most recently observed SR for ssrc, and
// whether one has been seen at all.
func (m *FeedbackMonitor) LastSenderInfo(ssrc uint32) (SenderInfo, bool) {
	info, ok := m.lastSender[ssrc]
	return info, ok
}

// Forget drops tracked state for ssrc, called when its session is
// destroyed (watchdog expiry or BYE).
func (m *FeedbackMonitor) Forget(ssrc uint32) {
	delete(m.stats, ssrc)
	delete(m.lastSender, ssrc)
}
