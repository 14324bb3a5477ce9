package rtp

import (
	"time"

	"github.com/rocwire/streamcore/format"
)

// TimestampMapper learns the (capture-ts <-> stream-ts) mapping from
// outbound packets and exposes an affine extrapolation used to generate
// RTCP send-report timestamps (spec.md §4.14).
type TimestampMapper struct {
	spec           format.SampleSpec
	hasMapping     bool
	lastCaptureNs  int64
	lastStreamTs   uint32
}

// NewTimestampMapper returns a mapper for the given sample rate.
func NewTimestampMapper(spec format.SampleSpec) *TimestampMapper {
	return &TimestampMapper{spec: spec}
}

// Update remembers (captureTimestamp, streamTimestamp) from the latest
// outbound packet. Per spec.md §4.14 the mapping only becomes valid once
// a non-zero capture_timestamp has been observed.
func (m *TimestampMapper) Update(captureTimestampNs int64, streamTimestamp uint32) {
	if captureTimestampNs == 0 {
		return
	}
	m.lastCaptureNs = captureTimestampNs
	m.lastStreamTs = streamTimestamp
	m.hasMapping = true
}

// Map returns the stream timestamp corresponding to wall-clock time t, by
// affine extrapolation from the last recorded pair:
// last_stream_ts + (ns - last_capture_ns) * sample_rate / 1e9.
// ok is false until the first non-zero capture timestamp has been seen
// (spec.md §4.14 "no mapping" sentinel).
func (m *TimestampMapper) Map(t time.Time) (ts uint32, ok bool) {
	if !m.hasMapping {
		return 0, false
	}

	deltaNs := t.UnixNano() - m.lastCaptureNs
	deltaSamples := deltaNs * int64(m.spec.SampleRate) / int64(time.Second)

	return uint32(int64(m.lastStreamTs) + deltaSamples), true
}
