package format

import "fmt"

// Remap converts a frame's interleaved samples from one channel layout to
// another. It is grounded on roc_audio's channel_muxer/chanalyzer pair: the
// sender remaps a capture-side layout to the session's wire layout, and the
// receiver remaps back to the sink's layout.
//
// Only the common cases are supported: mono->stereo (duplicate, lossless),
// stereo->mono (average of the two channels, lossy), and passthrough when
// the channel counts match. Surround/multitrack remapping
// is left to the embedder (spec.md §1 scopes full mixing out).
func Remap(in []float32, from, to SampleSpec) ([]float32, error) {
	if from.NumChannels == to.NumChannels {
		out := make([]float32, len(in))
		copy(out, in)
		return out, nil
	}

	if from.NumChannels == 1 && to.NumChannels == 2 {
		return monoToStereo(in), nil
	}
	if from.NumChannels == 2 && to.NumChannels == 1 {
		return stereoToMono(in), nil
	}

	return nil, fmt.Errorf("format: unsupported channel remap %d -> %d", from.NumChannels, to.NumChannels)
}

func monoToStereo(in []float32) []float32 {
	out := make([]float32, len(in)*2)
	for i, s := range in {
		out[2*i] = s
		out[2*i+1] = s
	}
	return out
}

func stereoToMono(in []float32) []float32 {
	n := len(in) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = (in[2*i] + in[2*i+1]) / 2
	}
	return out
}
