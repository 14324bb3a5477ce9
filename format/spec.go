// Package format defines the shared sample-spec and frame value types used
// across the transport pipeline (spec.md §3 "Data model").
package format

import (
	"fmt"
	"time"
)

// ChannelLayout enumerates the closed vocabulary of channel layouts
// spec.md §3 allows. Surround and multitrack layouts carry an explicit
// channel count/bitmask alongside the tag.
type ChannelLayout int

const (
	// ChannelLayoutMono is a single channel.
	ChannelLayoutMono ChannelLayout = iota
	// ChannelLayoutStereo is left/right.
	ChannelLayoutStereo
	// ChannelLayoutSurround is an N.M surround layout; N and M live in
	// SampleSpec.SurroundChannels / SurroundLFE.
	ChannelLayoutSurround
	// ChannelLayoutMultitrack is an arbitrary channel-mask layout; the
	// mask lives in SampleSpec.ChannelMask.
	ChannelLayoutMultitrack
)

func (l ChannelLayout) String() string {
	switch l {
	case ChannelLayoutMono:
		return "mono"
	case ChannelLayoutStereo:
		return "stereo"
	case ChannelLayoutSurround:
		return "surround"
	case ChannelLayoutMultitrack:
		return "multitrack"
	default:
		return "unknown"
	}
}

// SampleFormat is one of {raw float32 native, PCM signed/unsigned integer
// of width W in byte order B} per spec.md §3.
type SampleFormat int

const (
	// SampleFormatFloat32 is native-endian float32 samples.
	SampleFormatFloat32 SampleFormat = iota
	// SampleFormatPCMSigned is a signed integer PCM format; width/order
	// are carried in SampleSpec.
	SampleFormatPCMSigned
	// SampleFormatPCMUnsigned is an unsigned integer PCM format.
	SampleFormatPCMUnsigned
)

// ByteOrder selects network (big-endian) or little-endian wire layout for
// integer PCM formats.
type ByteOrder int

const (
	// ByteOrderBig is network byte order.
	ByteOrderBig ByteOrder = iota
	// ByteOrderLittle is little-endian.
	ByteOrderLittle
)

// SampleSpec is (sample_rate, channel layout, sample format). It is
// immutable after session construction (spec.md §3 invariant) — callers
// must treat a SampleSpec value as read-only once handed to a pipeline
// stage.
type SampleSpec struct {
	SampleRate uint32
	Layout     ChannelLayout
	// NumChannels is the interleaved channel count implied by Layout
	// (1 for mono, 2 for stereo, N+M for surroundN.M, popcount(ChannelMask)
	// for multitrack).
	NumChannels int
	// SurroundChannels/SurroundLFE are only meaningful when
	// Layout == ChannelLayoutSurround.
	SurroundChannels int
	SurroundLFE      int
	// ChannelMask is only meaningful when Layout == ChannelLayoutMultitrack.
	ChannelMask uint64

	Format      SampleFormat
	BitWidth    int // bits per sample for PCM formats; ignored for float32
	Order       ByteOrder
}

// Validate checks the spec is well-formed and returns a plain error (not
// a *status.Error) when it isn't; callers that need the typed code wrap
// it with status.New(status.BadConfig, "%v", err).
func (s SampleSpec) Validate() error {
	if s.SampleRate == 0 {
		return fmt.Errorf("sample spec: sample rate must be non-zero")
	}
	if s.NumChannels <= 0 {
		return fmt.Errorf("sample spec: num channels must be positive, got %d", s.NumChannels)
	}
	switch s.Format {
	case SampleFormatFloat32:
	case SampleFormatPCMSigned, SampleFormatPCMUnsigned:
		if s.BitWidth != 8 && s.BitWidth != 16 && s.BitWidth != 24 && s.BitWidth != 32 {
			return fmt.Errorf("sample spec: unsupported PCM bit width %d", s.BitWidth)
		}
	default:
		return fmt.Errorf("sample spec: unknown sample format %d", s.Format)
	}
	return nil
}

// BytesPerSample returns the on-wire size of one sample of one channel.
func (s SampleSpec) BytesPerSample() int {
	if s.Format == SampleFormatFloat32 {
		return 4
	}
	return s.BitWidth / 8
}

// NumSamplesToNs converts a per-channel sample count to a duration, per
// spec.md §3 ("Duration equals samples / (rate × channels)" — here
// numSamples already excludes the channel factor, matching the RTP
// stream-timestamp unit which counts frames, not interleaved samples).
func (s SampleSpec) NumSamplesToNs(numSamples uint64) time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return time.Duration(numSamples * uint64(time.Second) / uint64(s.SampleRate))
}

// NsToNumSamples is the inverse of NumSamplesToNs, rounding down.
func (s SampleSpec) NsToNumSamples(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d) * uint64(s.SampleRate) / uint64(time.Second)
}

// StreamTimestampDeltaToNs converts an absolute (unsigned) distance between
// two stream timestamps into nanoseconds, used by the validator (spec.md
// §4.10) to compare a seqnum/timestamp jump against a configured ns bound.
func (s SampleSpec) StreamTimestampDeltaToNs(delta uint32) time.Duration {
	return s.NumSamplesToNs(uint64(delta))
}

// CompletenessFlag is a bit in Frame.Flags (spec.md §3).
type CompletenessFlag uint8

const (
	// FlagRaw marks a frame carrying a raw (undecoded) payload.
	FlagRaw CompletenessFlag = 1 << iota
	// FlagSignalPresent marks a frame with non-silent audio.
	FlagSignalPresent
	// FlagHasGaps marks a frame containing concealed packet-loss gaps.
	FlagHasGaps
	// FlagHasDrops marks a frame containing dropped (late/duplicate)
	// packet regions.
	FlagHasDrops
)

// Frame is an ordered sequence of interleaved PCM samples tagged with
// timing and completeness metadata (spec.md §3). Samples are always
// carried as float32 internally; codec encode/decode at the packet
// boundary converts to/from the wire SampleFormat.
type Frame struct {
	Samples         []float32
	StreamTimestamp uint32
	Duration        time.Duration
	CaptureTime     time.Time
	Flags           CompletenessFlag
}

// NumSamplesPerChannel returns the per-channel sample count given spec.
func (f *Frame) NumSamplesPerChannel(spec SampleSpec) int {
	if spec.NumChannels <= 0 {
		return 0
	}
	return len(f.Samples) / spec.NumChannels
}

// HasFlag reports whether a completeness flag is set.
func (f *Frame) HasFlag(flag CompletenessFlag) bool {
	return f.Flags&flag != 0
}

// FrameSource is the sound-card (or file) boundary the sender pulls
// frames from. It is an external collaborator per spec.md §1; only the
// interface the core touches is defined here.
type FrameSource interface {
	ReadFrame(spec SampleSpec, numSamplesPerChannel int) (Frame, error)
}

// FrameSink is the sound-card (or file) boundary the receiver pushes
// rendered frames to.
type FrameSink interface {
	WriteFrame(spec SampleSpec, frame Frame) error
}
