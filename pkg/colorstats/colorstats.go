// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

// Package colorstats accumulates per-channel statistics of RGB image tensors: mean, standard
// deviation and the principal components of the pixel colors.
//
// They are the values used to configure transforms.Normalize and the PCA lighting noise
// (transforms.EigenBasis) for a new dataset.
package colorstats

import (
	"math"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/jiaxue1993/material-classification/pkg/transforms"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Accumulator of RGB pixel statistics. The zero value is ready to use.
// It is not safe for concurrent use.
type Accumulator struct {
	count    int64
	sum      [3]float64
	sumProds [3][3]float64
}

// Count returns the number of pixels accumulated.
func (a *Accumulator) Count() int64 { return a.count }

// Add accumulates the pixels of an image tensor. It accepts Float32 tensors shaped
// `[height, width, 3]` or batches shaped `[batch_size, height, width, 3]`.
func (a *Accumulator) Add(t *tensors.Tensor) error {
	shape := t.Shape()
	if shape.DType != dtypes.Float32 || (shape.Rank() != 3 && shape.Rank() != 4) || shape.Dimensions[shape.Rank()-1] != 3 {
		return errors.Errorf("colorstats requires Float32 images shaped [..., height, width, 3], got %s", shape)
	}
	return tensors.ConstFlatData[float32](t, func(flat []float32) {
		for ii := 0; ii+2 < len(flat); ii += 3 {
			rgb := [3]float64{float64(flat[ii]), float64(flat[ii+1]), float64(flat[ii+2])}
			for c := range 3 {
				a.sum[c] += rgb[c]
				for k := c; k < 3; k++ {
					a.sumProds[c][k] += rgb[c] * rgb[k]
				}
			}
			a.count++
		}
	})
}

// Mean returns the per-channel mean.
func (a *Accumulator) Mean() (mean [3]float64) {
	if a.count == 0 {
		return
	}
	for c := range 3 {
		mean[c] = a.sum[c] / float64(a.count)
	}
	return
}

// Covariance returns the (population) covariance matrix of the RGB values.
func (a *Accumulator) Covariance() *mat.SymDense {
	cov := mat.NewSymDense(3, nil)
	if a.count == 0 {
		return cov
	}
	n := float64(a.count)
	mean := a.Mean()
	for c := range 3 {
		for k := c; k < 3; k++ {
			cov.SetSym(c, k, a.sumProds[c][k]/n-mean[c]*mean[k])
		}
	}
	return cov
}

// Std returns the per-channel standard deviation.
func (a *Accumulator) Std() (std [3]float64) {
	cov := a.Covariance()
	for c := range 3 {
		std[c] = math.Sqrt(max(cov.At(c, c), 0))
	}
	return
}

// PCA returns the eigen decomposition of the covariance matrix, sorted by decreasing eigenvalue.
//
// Each eigenvector's sign is chosen so that its largest magnitude component is positive.
func (a *Accumulator) PCA() (transforms.EigenBasis, error) {
	var basis transforms.EigenBasis
	if a.count == 0 {
		return basis, errors.New("colorstats: no pixels accumulated")
	}
	var eigen mat.EigenSym
	if ok := eigen.Factorize(a.Covariance(), true); !ok {
		return basis, errors.New("colorstats: eigen decomposition of the color covariance failed")
	}
	values := eigen.Values(nil)
	var vectors mat.Dense
	eigen.VectorsTo(&vectors)

	order := []int{0, 1, 2}
	sort.Slice(order, func(i, j int) bool { return values[order[i]] > values[order[j]] })
	for k, col := range order {
		basis.Eigenvalues[k] = max(values[col], 0)
		sign := 1.0
		largest := 0.0
		for c := range 3 {
			if v := vectors.At(c, col); math.Abs(v) > math.Abs(largest) {
				largest = v
			}
		}
		if largest < 0 {
			sign = -1
		}
		for c := range 3 {
			basis.Eigenvectors[c][k] = sign * vectors.At(c, col)
		}
	}
	return basis, nil
}
