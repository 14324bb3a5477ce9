package audio

import (
	"github.com/rocwire/streamcore/format"
)

// ChannelMapper is the frame-transform stage wrapping format.Remap so it
// can sit in a pipeline chain alongside the packetizer/resampler (spec.md
// §9's data-flow lines name a "channel mapper" stage; format.Remap is
// only the bare conversion function it drives). A no-op mapper is
// returned when from and to already agree, so callers can always wire
// one in without a branch.
type ChannelMapper struct {
	from, to format.SampleSpec
}

// NewChannelMapper returns a mapper converting frames captured at from's
// layout into to's layout.
func NewChannelMapper(from, to format.SampleSpec) *ChannelMapper {
	return &ChannelMapper{from: from, to: to}
}

// Map converts frame's samples from the mapper's source to its
// destination layout, preserving every other field.
func (m *ChannelMapper) Map(frame *format.Frame) (*format.Frame, error) {
	samples, err := format.Remap(frame.Samples, m.from, m.to)
	if err != nil {
		return nil, err
	}
	out := *frame
	out.Samples = samples
	return &out, nil
}
