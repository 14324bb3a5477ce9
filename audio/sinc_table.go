package audio

import "math"

// sincTableResolution is how many table entries cover one unit of
// sample distance; lookups between entries use linear interpolation
// (spec.md §4.12).
const sincTableResolution = 256

// buildSincTable precomputes a Hann-windowed sinc kernel sampled every
// 1/sincTableResolution of a sample, covering distances [0, halfWindow]
// from the convolution center. Values beyond halfWindow are zero (the
// window has finite support).
func buildSincTable(halfWindow int) []float32 {
	n := halfWindow*sincTableResolution + 1
	table := make([]float32, n)
	for i := range table {
		t := float64(i) / float64(sincTableResolution)
		table[i] = float32(windowedSinc(t, float64(halfWindow)))
	}
	return table
}

func windowedSinc(t, halfWindow float64) float64 {
	var sinc float64
	if t == 0 {
		sinc = 1
	} else {
		x := math.Pi * t
		sinc = math.Sin(x) / x
	}
	window := 0.5 * (1 + math.Cos(math.Pi*t/halfWindow))
	return sinc * window
}

// lookupSinc returns the windowed-sinc weight at distance t (always >= 0;
// the kernel is even, so callers pass math.Abs of a signed distance),
// linearly interpolating between adjacent table entries, or 0 once t
// exceeds the table's support.
func lookupSinc(table []float32, halfWindow int, t float64) float32 {
	if t >= float64(halfWindow) {
		return 0
	}
	pos := t * sincTableResolution
	idx := int(pos)
	if idx >= len(table)-1 {
		return table[len(table)-1]
	}
	frac := float32(pos - float64(idx))
	lo, hi := table[idx], table[idx+1]
	return lo + frac*(hi-lo)
}
