// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/disintegration/imaging"
)

// Resize scales the image so its shorter side becomes Size, keeping the aspect ratio.
// The longer side is truncated to an integer. Images whose shorter side already equals Size are
// returned unchanged.
type Resize struct {
	Size   int
	Filter imaging.ResampleFilter
}

// NewResize returns a Resize operation using a bilinear filter.
func NewResize(size int) *Resize {
	return &Resize{Size: size, Filter: imaging.Linear}
}

// String implements fmt.Stringer.
func (r *Resize) String() string { return fmt.Sprintf("Resize(%d)", r.Size) }

// ApplyImage implements ImageOp.
func (r *Resize) ApplyImage(img image.Image, _ *rand.Rand) image.Image {
	size := img.Bounds().Size()
	width, height := resizedDims(size.X, size.Y, r.Size)
	if width == size.X && height == size.Y {
		return img
	}
	return imaging.Resize(img, width, height, r.Filter)
}

// resizedDims returns the dimensions after scaling the shorter side to target.
func resizedDims(width, height, target int) (int, int) {
	if width <= height {
		if width == target {
			return width, height
		}
		return target, int(float64(target) * float64(height) / float64(width))
	}
	if height == target {
		return width, height
	}
	return int(float64(target) * float64(width) / float64(height)), target
}

// CenterCrop crops the central Height x Width region of the image.
// Images smaller than the crop are first padded with black.
type CenterCrop struct {
	Height, Width int
}

// NewCenterCrop returns a square CenterCrop.
func NewCenterCrop(size int) *CenterCrop {
	return &CenterCrop{Height: size, Width: size}
}

// String implements fmt.Stringer.
func (c *CenterCrop) String() string {
	if c.Height == c.Width {
		return fmt.Sprintf("CenterCrop(%d)", c.Height)
	}
	return fmt.Sprintf("CenterCrop(%dx%d)", c.Height, c.Width)
}

// ApplyImage implements ImageOp.
func (c *CenterCrop) ApplyImage(img image.Image, _ *rand.Rand) image.Image {
	size := img.Bounds().Size()
	if size.X < c.Width || size.Y < c.Height {
		padded := imaging.New(max(size.X, c.Width), max(size.Y, c.Height), color.NRGBA{A: 0xFF})
		img = imaging.PasteCenter(padded, img)
		size = img.Bounds().Size()
	}
	if size.X == c.Width && size.Y == c.Height {
		return img
	}
	top := int(math.Round(float64(size.Y-c.Height) / 2))
	left := int(math.Round(float64(size.X-c.Width) / 2))
	minPt := img.Bounds().Min
	return imaging.Crop(img, image.Rect(minPt.X+left, minPt.Y+top, minPt.X+left+c.Width, minPt.Y+top+c.Height))
}

// RandomResizedCrop crops a random region of the image and resizes it to Size x Size.
//
// The region covers a fraction of the original area drawn uniformly from [MinScale, MaxScale],
// with an aspect ratio drawn log-uniformly from [MinRatio, MaxRatio]. After 10 failed attempts
// to fit such a region it falls back to a central crop with the closest valid aspect ratio.
type RandomResizedCrop struct {
	Size               int
	MinScale, MaxScale float64
	MinRatio, MaxRatio float64
	Filter             imaging.ResampleFilter
}

// NewRandomResizedCrop returns a RandomResizedCrop with the usual defaults: scale in [0.08, 1],
// aspect ratio in [3/4, 4/3] and a bilinear filter.
func NewRandomResizedCrop(size int) *RandomResizedCrop {
	return &RandomResizedCrop{
		Size:     size,
		MinScale: 0.08,
		MaxScale: 1.0,
		MinRatio: 3.0 / 4.0,
		MaxRatio: 4.0 / 3.0,
		Filter:   imaging.Linear,
	}
}

// String implements fmt.Stringer.
func (c *RandomResizedCrop) String() string {
	return fmt.Sprintf("RandomResizedCrop(%d, scale=[%g, %g], ratio=[%.3g, %.3g])",
		c.Size, c.MinScale, c.MaxScale, c.MinRatio, c.MaxRatio)
}

// IsRandom implements RandomOp.
func (c *RandomResizedCrop) IsRandom() bool { return true }

// CropRect returns the region to crop for an image of the given width and height,
// relative to the image origin.
func (c *RandomResizedCrop) CropRect(width, height int, rng *rand.Rand) image.Rectangle {
	area := float64(width * height)
	logMinRatio, logMaxRatio := math.Log(c.MinRatio), math.Log(c.MaxRatio)
	for range 10 {
		targetArea := area * (c.MinScale + rng.Float64()*(c.MaxScale-c.MinScale))
		aspect := math.Exp(logMinRatio + rng.Float64()*(logMaxRatio-logMinRatio))
		cropWidth := int(math.Round(math.Sqrt(targetArea * aspect)))
		cropHeight := int(math.Round(math.Sqrt(targetArea / aspect)))
		if cropWidth > 0 && cropWidth <= width && cropHeight > 0 && cropHeight <= height {
			top := rng.IntN(height - cropHeight + 1)
			left := rng.IntN(width - cropWidth + 1)
			return image.Rect(left, top, left+cropWidth, top+cropHeight)
		}
	}

	// Fallback to central crop.
	cropWidth, cropHeight := width, height
	inRatio := float64(width) / float64(height)
	if inRatio < c.MinRatio {
		cropHeight = int(math.Round(float64(cropWidth) / c.MinRatio))
	} else if inRatio > c.MaxRatio {
		cropWidth = int(math.Round(float64(cropHeight) * c.MaxRatio))
	}
	top := (height - cropHeight) / 2
	left := (width - cropWidth) / 2
	return image.Rect(left, top, left+cropWidth, top+cropHeight)
}

// ApplyImage implements ImageOp.
func (c *RandomResizedCrop) ApplyImage(img image.Image, rng *rand.Rand) image.Image {
	bounds := img.Bounds()
	rect := c.CropRect(bounds.Dx(), bounds.Dy(), rng).Add(bounds.Min)
	cropped := imaging.Crop(img, rect)
	return imaging.Resize(cropped, c.Size, c.Size, c.Filter)
}

// RandomHorizontalFlip mirrors the image left to right with probability P.
type RandomHorizontalFlip struct {
	P float64
}

// NewRandomHorizontalFlip returns a RandomHorizontalFlip with probability p.
func NewRandomHorizontalFlip(p float64) *RandomHorizontalFlip {
	return &RandomHorizontalFlip{P: p}
}

// String implements fmt.Stringer.
func (f *RandomHorizontalFlip) String() string { return fmt.Sprintf("RandomHorizontalFlip(%g)", f.P) }

// IsRandom implements RandomOp.
func (f *RandomHorizontalFlip) IsRandom() bool { return true }

// ApplyImage implements ImageOp.
func (f *RandomHorizontalFlip) ApplyImage(img image.Image, rng *rand.Rand) image.Image {
	if rng.Float64() < f.P {
		return imaging.FlipH(img)
	}
	return img
}

// RandomVerticalFlip mirrors the image top to bottom with probability P.
type RandomVerticalFlip struct {
	P float64
}

// NewRandomVerticalFlip returns a RandomVerticalFlip with probability p.
func NewRandomVerticalFlip(p float64) *RandomVerticalFlip {
	return &RandomVerticalFlip{P: p}
}

// String implements fmt.Stringer.
func (f *RandomVerticalFlip) String() string { return fmt.Sprintf("RandomVerticalFlip(%g)", f.P) }

// IsRandom implements RandomOp.
func (f *RandomVerticalFlip) IsRandom() bool { return true }

// ApplyImage implements ImageOp.
func (f *RandomVerticalFlip) ApplyImage(img image.Image, rng *rand.Rand) image.Image {
	if rng.Float64() < f.P {
		return imaging.FlipV(img)
	}
	return img
}
