package transforms

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLightingDisabled(t *testing.T) {
	l, err := NewLighting(0, ImageNetPCA)
	require.NoError(t, err)
	require.IsType(t, LightingDisabled{}, l)
	assert.False(t, l.Enabled())
	assert.False(t, l.IsRandom())

	input := tensors.FromFlatDataAndDimensions([]float32{0.1, 0.2, 0.3, -4, 5, 6e3}, 2, 1, 3)
	output, err := l.ApplyTensor(input, nil)
	require.NoError(t, err)
	assert.Same(t, input, output)
	assert.True(t, input.Equal(output))
}

func TestNewLightingErrors(t *testing.T) {
	for _, alphaStd := range []float64{-0.1, math.NaN(), math.Inf(1)} {
		_, err := NewLighting(alphaStd, ImageNetPCA)
		require.ErrorIs(t, err, ErrInvalidTransform, "alphaStd=%g", alphaStd)
	}
	badBasis := ImageNetPCA
	badBasis.Eigenvectors[1][2] = math.NaN()
	_, err := NewLighting(0.1, badBasis)
	require.ErrorIs(t, err, ErrInvalidTransform)
}

func TestLightingShift(t *testing.T) {
	l, err := NewLighting(0.1, ImageNetPCA)
	require.NoError(t, err)
	enabled := l.(*LightingEnabled)
	assert.True(t, enabled.Enabled())
	assert.True(t, enabled.IsRandom())

	// A single unit coefficient selects the scaled first eigenvector.
	got := enabled.Shift([3]float64{1, 0, 0})
	assert.InDeltaSlice(t, []float64{-0.5675 * 0.2175, -0.5808 * 0.2175, -0.5836 * 0.2175}, got[:], 1e-12)

	alpha := [3]float64{0.3, -1.2, 2.5}
	got = enabled.Shift(alpha)
	for c := range 3 {
		var want float64
		for k := range 3 {
			want += ImageNetPCA.Eigenvectors[c][k] * alpha[k] * ImageNetPCA.Eigenvalues[k]
		}
		assert.InDelta(t, want, got[c], 1e-12, "channel %d", c)
	}
}

func TestLightingApply(t *testing.T) {
	l, err := NewLighting(0.1, ImageNetPCA)
	require.NoError(t, err)
	enabled := l.(*LightingEnabled)

	inputFlat := []float32{0.1, 0.2, 0.3, 0.9, 0.8, 0.7, 0, 0, 0, 1, 1, 1}
	input := tensors.FromFlatDataAndDimensions(inputFlat, 2, 2, 3)
	output, err := l.ApplyTensor(input, newRng(3))
	require.NoError(t, err)
	assert.NotSame(t, input, output)
	assert.Equal(t, inputFlat, tensors.MustCopyFlatData[float32](input), "input must not be modified")

	shift := enabled.Shift(enabled.SampleAlpha(newRng(3)))
	outputFlat := tensors.MustCopyFlatData[float32](output)
	for ii, v := range inputFlat {
		assert.InDelta(t, float64(v)+shift[ii%3], float64(outputFlat[ii]), 1e-6, "value #%d", ii)
	}

	// Same seed, same result; different seeds, different results.
	again, err := l.ApplyTensor(input, newRng(3))
	require.NoError(t, err)
	assert.True(t, output.Equal(again))
	other, err := l.ApplyTensor(input, newRng(4))
	require.NoError(t, err)
	assert.False(t, output.Equal(other))

	_, err = l.ApplyTensor(input, nil)
	require.ErrorIs(t, err, ErrInvalidTransform)
	_, err = l.ApplyTensor(tensors.FromFlatDataAndDimensions([]float32{1, 2}, 1, 1, 2), newRng(1))
	require.ErrorIs(t, err, ErrInvalidTransform)
}
