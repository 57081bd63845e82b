// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

// Package transforms implements the image preprocessing and augmentation pipeline used to
// feed image classification models.
//
// A Pipeline is a sequence of ImageOp (geometric operations on an image.Image, implemented
// with github.com/disintegration/imaging), followed by the conversion to a float32 tensor shaped
// `[height, width, 3]` (channels last, values in [0, 1]), followed by a sequence of TensorOp
// (Normalize, Lighting).
//
// Random operations take a *rand.Rand, so results are reproducible given a seed.
//
// Example, the usual ImageNet style training pipeline:
//
//	p := transforms.NewPipeline("train").
//		Image(transforms.NewResize(256), transforms.NewRandomResizedCrop(224),
//			transforms.NewRandomHorizontalFlip(0.5)).
//		Tensor(transforms.ImageNetNormalize)
//	t, err := p.Apply(img, rng)
package transforms

import (
	"fmt"
	"image"
	"math/rand/v2"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// ErrInvalidTransform is returned for invalid transform parameters or inputs.
var ErrInvalidTransform = errors.New("invalid transform")

// ImageOp transforms an image. Random operations use rng; deterministic ones ignore it.
type ImageOp interface {
	fmt.Stringer
	ApplyImage(img image.Image, rng *rand.Rand) image.Image
}

// TensorOp transforms an image tensor shaped `[height, width, 3]` with dtype Float32.
//
// Implementations must not modify their input in place: they either return it unchanged or
// return a new tensor.
type TensorOp interface {
	fmt.Stringer
	ApplyTensor(t *tensors.Tensor, rng *rand.Rand) (*tensors.Tensor, error)
}

// RandomOp is optionally implemented by operations to report whether they consume random numbers.
type RandomOp interface {
	IsRandom() bool
}

func isRandom(op any) bool {
	r, ok := op.(RandomOp)
	return ok && r.IsRandom()
}

// Pipeline of image and tensor operations. Configure it before use: Apply is safe for
// concurrent use as long as the pipeline is not changed.
type Pipeline struct {
	name      string
	imageOps  []ImageOp
	tensorOps []TensorOp
}

// NewPipeline creates an empty pipeline, that only converts images to tensors.
func NewPipeline(name string) *Pipeline {
	return &Pipeline{name: name}
}

// Name of the pipeline.
func (p *Pipeline) Name() string { return p.name }

// Image appends operations applied to the image.Image, before conversion to tensor.
//
// It returns the Pipeline, so configuration calls can be cascaded.
func (p *Pipeline) Image(ops ...ImageOp) *Pipeline {
	p.imageOps = append(p.imageOps, ops...)
	return p
}

// Tensor appends operations applied to the tensor, after conversion.
//
// It returns the Pipeline, so configuration calls can be cascaded.
func (p *Pipeline) Tensor(ops ...TensorOp) *Pipeline {
	p.tensorOps = append(p.tensorOps, ops...)
	return p
}

// IsRandom returns whether any of the operations is random.
func (p *Pipeline) IsRandom() bool {
	for _, op := range p.imageOps {
		if isRandom(op) {
			return true
		}
	}
	for _, op := range p.tensorOps {
		if isRandom(op) {
			return true
		}
	}
	return false
}

// String lists the operations of the pipeline.
func (p *Pipeline) String() string {
	parts := make([]string, 0, len(p.imageOps)+len(p.tensorOps)+1)
	for _, op := range p.imageOps {
		parts = append(parts, op.String())
	}
	parts = append(parts, "ToTensor")
	for _, op := range p.tensorOps {
		parts = append(parts, op.String())
	}
	return fmt.Sprintf("%s: %s", p.name, strings.Join(parts, " -> "))
}

// ApplyImage applies only the image operations.
func (p *Pipeline) ApplyImage(img image.Image, rng *rand.Rand) image.Image {
	for _, op := range p.imageOps {
		img = op.ApplyImage(img, rng)
	}
	return img
}

// Apply runs the full pipeline on img and returns a Float32 tensor shaped `[height, width, 3]`.
//
// rng can only be nil if the pipeline has no random operations. Intermediate tensors are freed
// as soon as the next operation returns a new one.
func (p *Pipeline) Apply(img image.Image, rng *rand.Rand) (*tensors.Tensor, error) {
	if rng == nil && p.IsRandom() {
		return nil, errors.Wrapf(ErrInvalidTransform, "pipeline %q has random operations but no random source was given", p.name)
	}
	img = p.ApplyImage(img, rng)
	t, err := ToTensor(img)
	if err != nil {
		return nil, errors.WithMessagef(err, "pipeline %q", p.name)
	}
	for _, op := range p.tensorOps {
		next, err := op.ApplyTensor(t, rng)
		if err != nil {
			t.MustFinalizeAll()
			return nil, errors.WithMessagef(err, "pipeline %q, operation %s", p.name, op)
		}
		if next != t {
			// Intermediate results are owned by the pipeline.
			t.MustFinalizeAll()
		}
		t = next
	}
	return t, nil
}

// ToTensor converts img to a Float32 tensor shaped `[height, width, 3]` with values in [0, 1].
// The alpha channel is dropped.
func ToTensor(img image.Image) (t *tensors.Tensor, err error) {
	if img.Bounds().Empty() {
		return nil, errors.Wrapf(ErrInvalidTransform, "cannot convert empty image (bounds %s) to tensor", img.Bounds())
	}
	if img.Bounds().Min != (image.Point{}) {
		// Conversion reads pixels starting at (0, 0).
		img = imaging.Clone(img)
	}
	err = exceptions.TryCatch[error](func() {
		t = timage.ToTensor(dtypes.Float32).Single(img)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to convert image to tensor")
	}
	if t == nil {
		return nil, errors.Wrapf(ErrInvalidTransform, "failed to convert image to tensor")
	}
	return t, nil
}

// checkImageTensor returns the height and width of an image tensor, or an error if it is not
// a Float32 tensor shaped `[height, width, 3]`.
func checkImageTensor(t *tensors.Tensor) (height, width int, err error) {
	if t == nil {
		return 0, 0, errors.Wrap(ErrInvalidTransform, "nil image tensor")
	}
	shape := t.Shape()
	if shape.DType != dtypes.Float32 || shape.Rank() != 3 || shape.Dimensions[2] != 3 {
		return 0, 0, errors.Wrapf(ErrInvalidTransform, "image tensor must be Float32 shaped [height, width, 3], got %s", shape)
	}
	return shape.Dimensions[0], shape.Dimensions[1], nil
}
