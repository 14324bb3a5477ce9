package audio

import (
	"fmt"
	"time"

	"github.com/rocwire/streamcore/format"
	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/rtp"
	"github.com/rocwire/streamcore/status"
)

// StreamerState is the depacketizer/streamer state machine's current
// state (spec.md §4.8).
type StreamerState int

const (
	// StateWaiting: no packet has been seen yet. Pull emits silence and
	// does not advance stream_timestamp.
	StateWaiting StreamerState = iota
	// StatePlaying: advancing stream_timestamp, reading from queued
	// decoded packets.
	StatePlaying
	// StateTerminated: the watchdog fired. Pull emits silence and
	// signals the session for disposal.
	StateTerminated
)

// tsBefore reports whether a precedes b under wrap-aware stream_timestamp
// comparison (spec.md §4.10's "before" relation applied to timestamps).
func tsBefore(a, b uint32) bool { return int32(a-b) < 0 }

// tsLE reports whether a is at or before b, wrap-aware.
func tsLE(a, b uint32) bool { return int32(a-b) <= 0 }

type decodedPacket struct {
	pkt        *packet.Packet
	samples    []float32
	startTS    uint32
	numSamples int
	cursor     int
}

// Streamer is the depacketizer state machine (spec.md §4.8): it decodes
// inbound RTP packets, queues them by stream_timestamp, and on Pull
// produces exactly the requested number of samples per channel,
// concealing gaps and resolving overlaps as it goes.
type Streamer struct {
	spec    format.SampleSpec
	decoder rtp.Decoder

	state    StreamerState
	cursorTS uint32
	queue    []*decodedPacket

	watchdogTimeout time.Duration
	lastValidPacket time.Time

	beepDebug bool

	gapCount  uint64
	lateCount uint64
}

// NewStreamer returns a Streamer in StateWaiting. watchdogTimeout is the
// "time since last valid packet" bound that transitions it to
// StateTerminated; beepDebug selects an audible concealment tone instead
// of silence for gaps, for manual testing.
func NewStreamer(spec format.SampleSpec, decoder rtp.Decoder, watchdogTimeout time.Duration, beepDebug bool) *Streamer {
	return &Streamer{spec: spec, decoder: decoder, watchdogTimeout: watchdogTimeout, beepDebug: beepDebug}
}

// State returns the streamer's current state.
func (s *Streamer) State() StreamerState { return s.state }

// GapCount returns the number of concealed gap samples emitted.
func (s *Streamer) GapCount() uint64 { return s.gapCount }

// LateCount returns the number of packets dropped for arriving after the
// read cursor had already passed their span.
func (s *Streamer) LateCount() uint64 { return s.lateCount }

// Push decodes pkt and queues it by stream_timestamp. The first pushed
// packet transitions the streamer from StateWaiting to StatePlaying,
// seeding the cursor at that packet's stream_timestamp. A packet whose
// span has already fully passed the read cursor is dropped and counted
// as late, not an error.
func (s *Streamer) Push(pkt *packet.Packet, now time.Time) error {
	if pkt.RTP == nil {
		pkt.Release()
		return fmt.Errorf("audio: streamer: packet has no RTP fields")
	}

	samples, err := s.decoder.Decode(pkt.RTP.Payload)
	if err != nil {
		pkt.Release()
		return fmt.Errorf("audio: streamer: decode: %w", err)
	}
	ch := s.spec.NumChannels
	if ch <= 0 || len(samples)%ch != 0 {
		pkt.Release()
		return fmt.Errorf("audio: streamer: decoded %d samples does not divide channel count %d", len(samples), ch)
	}
	numPerChannel := len(samples) / ch
	start := pkt.RTP.StreamTimestamp
	end := start + uint32(numPerChannel)

	if s.state == StateWaiting {
		s.state = StatePlaying
		s.cursorTS = start
	}
	if s.state == StateTerminated {
		pkt.Release()
		return nil
	}

	if tsLE(end, s.cursorTS) {
		s.lateCount++
		pkt.Release()
		return nil
	}

	dp := &decodedPacket{pkt: pkt, samples: samples, startTS: start, numSamples: numPerChannel}
	s.insert(dp)
	s.lastValidPacket = now
	return nil
}

// insert places dp into the queue in ascending order of its distance
// from the current cursor, wrap-aware.
func (s *Streamer) insert(dp *decodedPacket) {
	key := func(ts uint32) int32 { return int32(ts - s.cursorTS) }
	idx := len(s.queue)
	for i, existing := range s.queue {
		if key(existing.startTS) > key(dp.startTS) {
			idx = i
			break
		}
	}
	s.queue = append(s.queue, nil)
	copy(s.queue[idx+1:], s.queue[idx:])
	s.queue[idx] = dp
}

// Pull produces exactly numSamplesPerChannel samples per channel
// starting at the current stream_timestamp cursor. status.Finish
// signals the watchdog fired on this call (or a prior one) and the
// session should be disposed; the returned frame is still a valid
// (silent) frame in that case.
func (s *Streamer) Pull(now time.Time, numSamplesPerChannel int) (*format.Frame, status.Code) {
	if s.state == StatePlaying && s.watchdogTimeout > 0 && !s.lastValidPacket.IsZero() && now.Sub(s.lastValidPacket) > s.watchdogTimeout {
		s.Close()
		s.state = StateTerminated
	}

	ch := s.spec.NumChannels
	samples := make([]float32, numSamplesPerChannel*ch)
	duration := s.spec.NumSamplesToNs(uint64(numSamplesPerChannel))

	switch s.state {
	case StateWaiting:
		frame := &format.Frame{Samples: samples, StreamTimestamp: s.cursorTS, Duration: duration, CaptureTime: now, Flags: format.FlagHasGaps}
		return frame, status.Ok
	case StateTerminated:
		frame := &format.Frame{Samples: samples, StreamTimestamp: s.cursorTS, Duration: duration, CaptureTime: now, Flags: format.FlagHasGaps}
		return frame, status.Finish
	}

	startTS := s.cursorTS
	signal := false
	gapped := false
	for i := 0; i < numSamplesPerChannel; i++ {
		val, gap := s.readSample()
		if gap {
			gapped = true
			s.gapCount++
			if s.beepDebug {
				tone := beepSample(i)
				for c := 0; c < ch; c++ {
					samples[i*ch+c] = tone
				}
			}
		} else {
			copy(samples[i*ch:(i+1)*ch], val)
			for _, v := range val {
				if v != 0 {
					signal = true
				}
			}
		}
		s.cursorTS++
	}

	var flags format.CompletenessFlag
	if gapped {
		flags |= format.FlagHasGaps
	}
	if signal {
		flags |= format.FlagSignalPresent
	}

	return &format.Frame{Samples: samples, StreamTimestamp: startTS, Duration: duration, CaptureTime: now, Flags: flags}, status.Ok
}

// readSample normalizes the queue front (dropping fully-consumed or
// fully-overlapped packets, advancing a partially-overlapped packet's
// cursor past the overlap per the overlap policy) and returns the next
// sample frame, or gap=true if the cursor currently falls before any
// queued packet or the queue is empty.
func (s *Streamer) readSample() (val []float32, gap bool) {
	for len(s.queue) > 0 {
		head := s.queue[0]
		overlap := int32(s.cursorTS) - int32(head.startTS)
		if overlap > 0 {
			if int(overlap) >= head.numSamples {
				head.pkt.Release()
				s.queue = s.queue[1:]
				continue
			}
			head.cursor = int(overlap)
		}
		break
	}
	if len(s.queue) == 0 {
		return nil, true
	}

	head := s.queue[0]
	if tsBefore(s.cursorTS, head.startTS) {
		return nil, true
	}

	ch := s.spec.NumChannels
	val = head.samples[head.cursor*ch : (head.cursor+1)*ch]
	head.cursor++
	if head.cursor >= head.numSamples {
		head.pkt.Release()
		s.queue = s.queue[1:]
	}
	return val, false
}

// beepSample produces a crude, fixed-frequency square-wave tone used as
// the debug gap-concealment option instead of silence.
func beepSample(i int) float32 {
	if (i/50)%2 == 0 {
		return 0.05
	}
	return -0.05
}

// Close releases every packet still queued. Called when the watchdog
// fires or the session tears down.
func (s *Streamer) Close() {
	for _, dp := range s.queue {
		dp.pkt.Release()
	}
	s.queue = nil
}
