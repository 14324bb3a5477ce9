package audio

import (
	"testing"

	"github.com/rocwire/streamcore/format"
	"github.com/stretchr/testify/require"
)

func testResamplerSpec() format.SampleSpec {
	return format.SampleSpec{SampleRate: 48000, NumChannels: 1}
}

func feedSilence(t *testing.T, r *Resampler, tiles int) {
	t.Helper()
	for i := 0; i < tiles; i++ {
		tile := r.PushInput()
		require.NoError(t, r.CommitInput(tile))
	}
}

func TestResamplerUnityScalingPassesThroughLength(t *testing.T) {
	r, err := NewResampler(testResamplerSpec(), 64)
	require.NoError(t, err)
	require.NoError(t, r.SetScaling(48000, 48000, 1.0))

	feedSilence(t, r, 4)

	out := make([]float32, 64)
	produced, err := r.PopOutput(out)
	require.NoError(t, err)
	require.Greater(t, produced, 0)
}

func TestResamplerRejectsRatioExceedingWindow(t *testing.T) {
	r, err := NewResampler(testResamplerSpec(), 20)
	require.NoError(t, err)
	err = r.SetScaling(48000, 8000, 1.0)
	require.Error(t, err)
}

func TestResamplerConstantSignalStaysConstant(t *testing.T) {
	r, err := NewResampler(testResamplerSpec(), 64)
	require.NoError(t, err)
	require.NoError(t, r.SetScaling(48000, 48000, 1.0))

	for i := 0; i < 4; i++ {
		tile := r.PushInput()
		for j := range tile {
			tile[j] = 0.5
		}
		require.NoError(t, r.CommitInput(tile))
	}

	out := make([]float32, 128)
	produced, err := r.PopOutput(out)
	require.NoError(t, err)
	require.Greater(t, produced, 0)

	for i := 0; i < produced; i++ {
		require.InDelta(t, 0.5, out[i], 0.02, "sample %d should track the constant input within kernel ripple", i)
	}
}

func TestResamplerReportsSamplesLeftToProcess(t *testing.T) {
	r, err := NewResampler(testResamplerSpec(), 64)
	require.NoError(t, err)
	require.NoError(t, r.SetScaling(48000, 48000, 1.0))

	require.Equal(t, uint64(0), r.NLeftToProcess())
	feedSilence(t, r, 3)
	require.Equal(t, uint64(3*64), r.NLeftToProcess())

	out := make([]float32, 64)
	_, err = r.PopOutput(out)
	require.NoError(t, err)
	require.Less(t, r.NLeftToProcess(), uint64(3*64))
}

func TestResamplerStopsWhenInputExhausted(t *testing.T) {
	r, err := NewResampler(testResamplerSpec(), 64)
	require.NoError(t, err)
	require.NoError(t, r.SetScaling(48000, 48000, 1.0))

	feedSilence(t, r, 2)

	out := make([]float32, 1024)
	produced, err := r.PopOutput(out)
	require.NoError(t, err)
	require.Less(t, produced, 1024)
}
