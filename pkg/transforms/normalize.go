// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

var (
	// ImageNetMean is the per-channel (RGB) mean of the ImageNet training images, in [0, 1].
	ImageNetMean = [3]float64{0.485, 0.456, 0.406}

	// ImageNetStd is the per-channel (RGB) standard deviation of the ImageNet training images.
	ImageNetStd = [3]float64{0.229, 0.224, 0.225}

	// ImageNetNormalize normalizes images with the ImageNet statistics.
	ImageNetNormalize = &Normalize{Mean: ImageNetMean, Std: ImageNetStd}
)

// Normalize subtracts the per-channel Mean and divides by the per-channel Std.
type Normalize struct {
	Mean, Std [3]float64
}

// NewNormalize returns a Normalize operation, or an error if any of the standard deviations
// is not positive.
func NewNormalize(mean, std [3]float64) (*Normalize, error) {
	for ii, s := range std {
		if !(s > 0) || math.IsInf(s, 0) {
			return nil, errors.Wrapf(ErrInvalidTransform, "normalize std[%d]=%g must be positive and finite", ii, s)
		}
	}
	for ii, m := range mean {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, errors.Wrapf(ErrInvalidTransform, "normalize mean[%d]=%g must be finite", ii, m)
		}
	}
	return &Normalize{Mean: mean, Std: std}, nil
}

// String implements fmt.Stringer.
func (n *Normalize) String() string {
	return fmt.Sprintf("Normalize(mean=%v, std=%v)", n.Mean, n.Std)
}

// ApplyTensor implements TensorOp. It returns a new tensor.
func (n *Normalize) ApplyTensor(t *tensors.Tensor, _ *rand.Rand) (*tensors.Tensor, error) {
	return mapChannels(t, func(channel int, v float32) float32 {
		return float32((float64(v) - n.Mean[channel]) / n.Std[channel])
	})
}

// Invert undoes the normalization, clamping the values to [0, 1] so the result can be
// converted back to an image. It returns a new tensor.
func (n *Normalize) Invert(t *tensors.Tensor) (*tensors.Tensor, error) {
	return mapChannels(t, func(channel int, v float32) float32 {
		x := float64(v)*n.Std[channel] + n.Mean[channel]
		return float32(min(max(x, 0), 1))
	})
}

// mapChannels returns a new tensor with fn applied to each value of the image tensor t.
// fn is given the channel of each value.
func mapChannels(t *tensors.Tensor, fn func(channel int, v float32) float32) (*tensors.Tensor, error) {
	if _, _, err := checkImageTensor(t); err != nil {
		return nil, err
	}
	output := tensors.FromShape(shapes.Make(dtypes.Float32, t.Shape().Dimensions...))
	var innerErr error
	err := tensors.ConstFlatData[float32](t, func(input []float32) {
		innerErr = tensors.MutableFlatData[float32](output, func(flat []float32) {
			for ii, v := range input {
				flat[ii] = fn(ii%3, v)
			}
		})
	})
	if err == nil {
		err = innerErr
	}
	if err != nil {
		output.MustFinalizeAll()
		return nil, errors.WithMessage(err, "failed to access image tensor data")
	}
	return output, nil
}
