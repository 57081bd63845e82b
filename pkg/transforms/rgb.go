// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	// Image formats: imaging registers jpeg, png, gif, bmp and tiff.
	_ "golang.org/x/image/webp"
)

// Decode reads an image in any of the registered formats, applying the EXIF orientation
// if present.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	return img, nil
}

// ToRGB returns an opaque 8-bit RGB copy of img, whatever its color model (grayscale,
// paletted, CMYK, with alpha, 16 bits).
//
// The alpha channel is dropped, not composited: non-premultiplied color values are kept and the
// alpha is set to fully opaque.
func ToRGB(img image.Image) *image.NRGBA {
	rgb := imaging.Clone(img)
	for ii := 3; ii < len(rgb.Pix); ii += 4 {
		rgb.Pix[ii] = 0xFF
	}
	return rgb
}
