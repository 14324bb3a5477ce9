package audio

import (
	"fmt"
	"math"

	"github.com/rocwire/streamcore/format"
)

// fixedOne is the Q8.24 representation of 1.0: 8 integer bits, 24
// fractional bits, held in uint64 fields. The 8-bit integer part is why
// the resampler's internal frame size (not the caller's packet size) is
// bounded well under 256 (spec.md §4.12, grounded on
// roc_audio/resampler.cpp's qt_frame_size_ == frame_size_ << FRACT_BIT_COUNT).
const fixedFracBits = 24
const fixedOne = uint64(1) << fixedFracBits

// resamplerHalfWindow is the sinc kernel's half-width in input samples.
// A wider window trades CPU for steeper rolloff; this matches the
// window roc_audio's resampler builds by default.
const resamplerHalfWindow = 16

// maxInternalFrame bounds the resampler's internal tile size so that
// frame_size << fixedFracBits never overflows a uint32 Q8.24 value.
const maxInternalFrame = 200

// Resampler performs windowed-sinc polyphase fractional resampling
// (spec.md §4.12), grounded on roc_audio/resampler.cpp: it keeps a
// three-tile window (prev, curr, next) of internalFrame samples per
// channel, advances a Q8.24 output-time cursor by a step derived from
// the scaling factor, and convolves the window against a precomputed
// sinc table with linear interpolation between table entries.
type Resampler struct {
	spec     format.SampleSpec
	channels int

	internalFrame int
	halfWindow    int
	table         []float32

	prev, curr, next []float32 // interleaved, len == internalFrame*channels
	haveCurr         bool

	pending [][]float32 // committed input tiles awaiting rotation into the window

	qtSample uint64 // Q8.24 position within curr, in [0, qtFrame)
	qtStep   uint64 // Q8.24 step per output sample
	qtFrame  uint64 // Q8.24 representation of internalFrame

	scaling float64

	pushedSamples   uint64 // per-channel samples committed via CommitInput
	processedTiles  uint64 // per-channel samples retired out of the window via renewWindow
	exhausted       bool
}

// NewResampler returns a Resampler operating at spec's channel count,
// using internalFrame samples per channel as its window tile size.
// internalFrame must leave room for the sinc half-window on both sides
// within the Q8.24 integer range.
func NewResampler(spec format.SampleSpec, internalFrame int) (*Resampler, error) {
	if spec.NumChannels <= 0 {
		return nil, fmt.Errorf("audio: resampler: invalid channel count %d", spec.NumChannels)
	}
	if internalFrame <= 0 || internalFrame+resamplerHalfWindow+1 > maxInternalFrame {
		return nil, fmt.Errorf("audio: resampler: internal frame %d incompatible with fixed-point range (max %d)", internalFrame, maxInternalFrame-resamplerHalfWindow-1)
	}
	r := &Resampler{
		spec:          spec,
		channels:      spec.NumChannels,
		internalFrame: internalFrame,
		halfWindow:    resamplerHalfWindow,
		table:         buildSincTable(resamplerHalfWindow),
		qtFrame:       uint64(internalFrame) << fixedFracBits,
		scaling:       1,
		qtStep:        fixedOne,
	}
	r.prev = make([]float32, internalFrame*r.channels)
	return r, nil
}

// SetScaling sets the input/output rate ratio, further adjusted by
// multiplier (the closed-loop frequency correction term, spec.md §4.13).
// It rejects a ratio that would widen the sinc window past what the
// internal frame tile can hold.
func (r *Resampler) SetScaling(inRate, outRate uint32, multiplier float64) error {
	if outRate == 0 {
		return fmt.Errorf("audio: resampler: output rate is zero")
	}
	ratio := multiplier * float64(inRate) / float64(outRate)
	if ratio <= 0 {
		return fmt.Errorf("audio: resampler: non-positive scaling ratio %f", ratio)
	}
	effectiveHalfWindow := float64(r.halfWindow) * math.Max(ratio, 1)
	if effectiveHalfWindow+1 >= float64(r.internalFrame) {
		return fmt.Errorf("audio: resampler: scaling ratio %f requires a window wider than the internal frame", ratio)
	}
	r.scaling = ratio
	r.qtStep = uint64(ratio * float64(fixedOne))
	return nil
}

// PushInput returns a writable buffer of internalFrame*channels
// interleaved samples for the caller to fill with the next tile of
// input audio. Call CommitInput once it has been filled.
func (r *Resampler) PushInput() []float32 {
	return make([]float32, r.internalFrame*r.channels)
}

// CommitInput enqueues a tile previously obtained from PushInput (and
// now filled with samples) as available input.
func (r *Resampler) CommitInput(tile []float32) error {
	if len(tile) != r.internalFrame*r.channels {
		return fmt.Errorf("audio: resampler: committed tile has %d samples, want %d", len(tile), r.internalFrame*r.channels)
	}
	r.pending = append(r.pending, tile)
	r.pushedSamples += uint64(r.internalFrame)
	r.exhausted = false
	return nil
}

// NLeftToProcess reports the per-channel count of pushed input samples
// not yet reflected in output.
func (r *Resampler) NLeftToProcess() uint64 {
	if r.pushedSamples < r.processedTiles {
		return 0
	}
	return r.pushedSamples - r.processedTiles
}

// renewWindow rotates prev<-curr<-next and pulls a new next tile from
// pending. It returns false once there is no further tile to rotate in,
// meaning output cannot advance past the current window without more
// input.
func (r *Resampler) renewWindow() bool {
	if !r.haveCurr {
		if len(r.pending) < 2 {
			return false
		}
		r.curr = r.pending[0]
		r.next = r.pending[1]
		r.pending = r.pending[2:]
		r.haveCurr = true
		r.processedTiles += uint64(2 * r.internalFrame)
		return true
	}
	if len(r.pending) == 0 {
		return false
	}
	r.prev = r.curr
	r.curr = r.next
	r.next = r.pending[0]
	r.pending = r.pending[1:]
	r.processedTiles += uint64(r.internalFrame)
	return true
}

// PopOutput fills buf (interleaved, a multiple of channels long) with
// resampled output and returns how many samples per channel were
// actually produced; fewer than requested means input ran out.
func (r *Resampler) PopOutput(buf []float32) (int, error) {
	if len(buf)%r.channels != 0 {
		return 0, fmt.Errorf("audio: resampler: output buffer length %d is not a multiple of channel count %d", len(buf), r.channels)
	}
	if !r.haveCurr && !r.renewWindow() {
		return 0, nil
	}
	wanted := len(buf) / r.channels
	produced := 0
	for produced < wanted {
		if r.qtSample >= r.qtFrame {
			r.qtSample -= r.qtFrame
			if !r.renewWindow() {
				r.exhausted = true
				break
			}
		}
		r.convolve(buf[produced*r.channels : (produced+1)*r.channels])
		r.qtSample += r.qtStep
		produced++
	}
	return produced, nil
}

// convolve writes one resampled sample per channel into out, evaluating
// the sinc kernel centered at the current Q8.24 position within curr,
// reaching into prev or next when the window extends past curr's
// boundary.
func (r *Resampler) convolve(out []float32) {
	center := float64(r.qtSample) / float64(fixedOne) // position within curr, in [0, internalFrame)
	lo := int(math.Floor(center)) - r.halfWindow
	hi := int(math.Floor(center)) + r.halfWindow

	for c := 0; c < r.channels; c++ {
		out[c] = 0
	}
	for idx := lo; idx <= hi; idx++ {
		dist := math.Abs(center - float64(idx))
		weight := lookupSinc(r.table, r.halfWindow, dist)
		if weight == 0 {
			continue
		}
		tile, tileIdx := r.resolveTile(idx)
		if tile == nil {
			continue
		}
		base := tileIdx * r.channels
		for c := 0; c < r.channels; c++ {
			out[c] += tile[base+c] * weight
		}
	}
}

// resolveTile maps a window-relative sample index (possibly negative or
// past internalFrame, since the sinc kernel overhangs curr's edges) to
// the tile holding it and that tile's local index.
func (r *Resampler) resolveTile(idx int) ([]float32, int) {
	switch {
	case idx < 0:
		local := idx + r.internalFrame
		if local < 0 {
			return nil, 0
		}
		return r.prev, local
	case idx >= r.internalFrame:
		local := idx - r.internalFrame
		if local >= r.internalFrame {
			return nil, 0
		}
		return r.next, local
	default:
		return r.curr, idx
	}
}

// Scaling returns the currently configured input/output ratio.
func (r *Resampler) Scaling() float64 { return r.scaling }
