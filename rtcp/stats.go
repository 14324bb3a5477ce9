package rtcp

// ReceiveStats accumulates the per-source counters an RTCP receiver
// report needs: cumulative packet loss and interarrival jitter, per
// RFC 3550 §6.4.1 (the "five report fields" spec.md §1 scopes RTCP
// down to: NTP/RTP timestamp and packet/octet counts for SR; cumulative
// loss, fraction lost, jitter, and last-SR/delay-since-last-SR for RR).
type ReceiveStats struct {
	sampleRate uint32

	extendedMax  uint32 // highest sequence number received, extended with wrap cycles
	cycles       uint32
	hasFirst     bool
	firstSeq     uint16
	lastSeq      uint16
	received     uint32

	jitter      float64
	hasLastXmit bool
	lastTransit int64

	lastSRNTP uint64
	lastSRAt  int64 // wall-clock ns when the last SR was received, for DLSR
}

// NewReceiveStats returns a stats tracker for a stream at sampleRate.
func NewReceiveStats(sampleRate uint32) *ReceiveStats {
	return &ReceiveStats{sampleRate: sampleRate}
}

// OnPacket updates loss/sequence tracking for a received RTP packet and
// its jitter contribution, following RFC 3550's recommended jitter
// estimator: J += (|D| - J) / 16, where D is the difference in relative
// transit times between this and the previous packet.
func (s *ReceiveStats) OnPacket(seq uint16, streamTimestamp uint32, arrivalNs int64) {
	if !s.hasFirst {
		s.hasFirst = true
		s.firstSeq = seq
		s.lastSeq = seq
		s.extendedMax = uint32(seq)
	} else if int16(seq-s.lastSeq) > 0 {
		if seq < s.lastSeq {
			s.cycles += 1 << 16
		}
		s.lastSeq = seq
		s.extendedMax = s.cycles + uint32(seq)
	}
	s.received++

	// Split into whole seconds and remainder so Unix-epoch nanosecond
	// times do not overflow int64 when scaled by the sample rate.
	arrivalSamples := arrivalNs/1e9*int64(s.sampleRate) + arrivalNs%1e9*int64(s.sampleRate)/1e9
	transit := arrivalSamples - int64(streamTimestamp)
	if s.hasLastXmit {
		d := transit - s.lastTransit
		if d < 0 {
			d = -d
		}
		s.jitter += (float64(d) - s.jitter) / 16
	}
	s.lastTransit = transit
	s.hasLastXmit = true
}

// OnSenderReport records the NTP timestamp carried by an incoming SR and
// the local arrival time, for the next RR's LSR/DLSR fields.
func (s *ReceiveStats) OnSenderReport(ntpTime uint64, arrivalNs int64) {
	s.lastSRNTP = ntpTime
	s.lastSRAt = arrivalNs
}

// Expected returns the number of packets that should have arrived
// between the first and the highest sequence number seen.
func (s *ReceiveStats) Expected() uint32 {
	if !s.hasFirst {
		return 0
	}
	return s.extendedMax - uint32(s.firstSeq) + 1
}

// CumulativeLost returns expected-minus-received, clamped to zero (a
// duplicate-heavy stream can otherwise go negative).
func (s *ReceiveStats) CumulativeLost() int32 {
	lost := int32(s.Expected()) - int32(s.received)
	if lost < 0 {
		return 0
	}
	return lost
}

// FractionLost returns the cumulative loss fraction since stream start,
// as the Q8 fixed-point byte RFC 3550 §6.4.1 uses (256 == 100% lost).
// It is not reset between reports, so it is a long-run rate rather than
// the per-interval fraction RFC 3550 describes.
func (s *ReceiveStats) FractionLost() uint8 {
	expected := s.Expected()
	if expected == 0 {
		return 0
	}
	lost := s.CumulativeLost()
	frac := (float64(lost) / float64(expected)) * 256
	if frac < 0 {
		frac = 0
	}
	if frac > 255 {
		frac = 255
	}
	return uint8(frac)
}

// Jitter returns the current interarrival jitter estimate, in timestamp
// units (RFC 3550 §6.4.1).
func (s *ReceiveStats) Jitter() uint32 {
	if s.jitter < 0 {
		return 0
	}
	return uint32(s.jitter)
}

// ExtendedHighestSeq returns the highest sequence number received,
// extended by 16-bit wrap cycle count.
func (s *ReceiveStats) ExtendedHighestSeq() uint32 { return s.extendedMax }

// LastSR returns the middle 32 bits of the last-received SR's NTP
// timestamp (the LSR field) and, given now, the delay since it arrived
// in 1/65536-second units (the DLSR field). ok is false if no SR has
// been seen yet.
func (s *ReceiveStats) LastSR(nowNs int64) (lsr uint32, dlsr uint32, ok bool) {
	if s.lastSRNTP == 0 {
		return 0, 0, false
	}
	lsr = uint32(s.lastSRNTP >> 16)
	delayNs := nowNs - s.lastSRAt
	if delayNs < 0 {
		delayNs = 0
	}
	dlsr = uint32(delayNs * 65536 / 1e9)
	return lsr, dlsr, true
}
