// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// EigenBasis is the principal component decomposition of the RGB pixel covariance of a
// dataset: Eigenvectors[c][k] is the component c (R, G or B) of the k-th eigenvector.
type EigenBasis struct {
	Eigenvalues  [3]float64    `yaml:"eigenvalues"`
	Eigenvectors [3][3]float64 `yaml:"eigenvectors"`
}

// ImageNetPCA is the eigen decomposition of the RGB covariance of the ImageNet training images.
var ImageNetPCA = EigenBasis{
	Eigenvalues: [3]float64{0.2175, 0.0188, 0.0045},
	Eigenvectors: [3][3]float64{
		{-0.5675, 0.7192, 0.4009},
		{-0.5808, -0.0045, -0.8140},
		{-0.5836, -0.6948, 0.4203},
	},
}

// Validate returns an error if any of the values is not finite.
func (b EigenBasis) Validate() error {
	for k, v := range b.Eigenvalues {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrInvalidTransform, "eigenvalue[%d]=%g is not finite", k, v)
		}
	}
	for c, row := range b.Eigenvectors {
		for k, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrapf(ErrInvalidTransform, "eigenvector[%d][%d]=%g is not finite", c, k, v)
			}
		}
	}
	return nil
}

// Lighting is the AlexNet style PCA lighting noise: each image gets a per-channel offset along
// the principal components of the RGB colors, with random magnitudes.
//
// It is either LightingDisabled or *LightingEnabled. Use NewLighting to create one.
type Lighting interface {
	TensorOp
	RandomOp

	// Enabled returns whether the lighting noise is applied.
	Enabled() bool

	isLighting()
}

// NewLighting returns LightingDisabled if alphaStd is exactly 0, and a LightingEnabled otherwise.
// alphaStd must be non-negative and finite.
func NewLighting(alphaStd float64, basis EigenBasis) (Lighting, error) {
	if math.IsNaN(alphaStd) || math.IsInf(alphaStd, 0) || alphaStd < 0 {
		return nil, errors.Wrapf(ErrInvalidTransform, "lighting alphaStd=%g must be non-negative and finite", alphaStd)
	}
	if alphaStd == 0 {
		return LightingDisabled{}, nil
	}
	if err := basis.Validate(); err != nil {
		return nil, err
	}
	return &LightingEnabled{AlphaStd: alphaStd, Basis: basis}, nil
}

// LightingDisabled is the Lighting that returns its input unchanged.
type LightingDisabled struct{}

var _ Lighting = LightingDisabled{}

func (LightingDisabled) isLighting() {}

// Enabled implements Lighting.
func (LightingDisabled) Enabled() bool { return false }

// IsRandom implements RandomOp.
func (LightingDisabled) IsRandom() bool { return false }

// String implements fmt.Stringer.
func (LightingDisabled) String() string { return "Lighting(disabled)" }

// ApplyTensor returns t itself, with no copy and no random numbers consumed.
func (LightingDisabled) ApplyTensor(t *tensors.Tensor, _ *rand.Rand) (*tensors.Tensor, error) {
	return t, nil
}

// LightingEnabled adds PCA lighting noise with coefficients drawn from Normal(0, AlphaStd).
type LightingEnabled struct {
	AlphaStd float64
	Basis    EigenBasis
}

var _ Lighting = (*LightingEnabled)(nil)

func (*LightingEnabled) isLighting() {}

// Enabled implements Lighting.
func (*LightingEnabled) Enabled() bool { return true }

// IsRandom implements RandomOp.
func (*LightingEnabled) IsRandom() bool { return true }

// String implements fmt.Stringer.
func (l *LightingEnabled) String() string { return fmt.Sprintf("Lighting(%g)", l.AlphaStd) }

// SampleAlpha draws the 3 coefficients, in order, from Normal(0, AlphaStd).
func (l *LightingEnabled) SampleAlpha(rng *rand.Rand) (alpha [3]float64) {
	for k := range alpha {
		alpha[k] = rng.NormFloat64() * l.AlphaStd
	}
	return
}

// Shift returns the per-channel offset for the given coefficients:
//
//	shift[c] = Σ_k Eigenvectors[c][k] * alpha[k] * Eigenvalues[k]
func (l *LightingEnabled) Shift(alpha [3]float64) [3]float64 {
	vectors := mat.NewDense(3, 3, nil)
	for c, row := range l.Basis.Eigenvectors {
		vectors.SetRow(c, row[:])
	}
	weights := mat.NewVecDense(3, nil)
	for k := range alpha {
		weights.SetVec(k, alpha[k]*l.Basis.Eigenvalues[k])
	}
	var rgb mat.VecDense
	rgb.MulVec(vectors, weights)
	return [3]float64{rgb.AtVec(0), rgb.AtVec(1), rgb.AtVec(2)}
}

// ApplyTensor implements TensorOp. It returns a new tensor, the input is not changed.
// Values are not clipped.
func (l *LightingEnabled) ApplyTensor(t *tensors.Tensor, rng *rand.Rand) (*tensors.Tensor, error) {
	if _, _, err := checkImageTensor(t); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.Wrap(ErrInvalidTransform, "lighting requires a random source")
	}
	shift := l.Shift(l.SampleAlpha(rng))
	var shift32 [3]float32
	for c, s := range shift {
		shift32[c] = float32(s)
	}
	return mapChannels(t, func(channel int, v float32) float32 {
		return v + shift32[channel]
	})
}
