// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package dtd

import (
	"image"
	"math/rand/v2"
	"sync"

	"github.com/jiaxue1993/material-classification/pkg/dataloader"
	"github.com/jiaxue1993/material-classification/pkg/transforms"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Sample is an image tensor, shaped `[height, width, 3]`, with its label.
type Sample = dataloader.Sample

// Source gives random access to the images of a ManifestIndex, decoded and transformed.
//
// It implements dataloader.RandomAccess, and it is safe for concurrent use.
type Source struct {
	name     string
	fs       afero.Fs
	index    *ManifestIndex
	pipeline *transforms.Pipeline

	muRng sync.Mutex
	rng   *rand.Rand
}

var _ dataloader.RandomAccess = (*Source)(nil)

// NewSource creates a Source over the images of index.
//
// If pipeline is nil, images are only converted to Float32 tensors with values in [0, 1].
// seed is used by Get to draw the random augmentation of each call.
func NewSource(name string, fs afero.Fs, index *ManifestIndex, pipeline *transforms.Pipeline, seed uint64) *Source {
	return &Source{
		name:     name,
		fs:       fs,
		index:    index,
		pipeline: pipeline,
		rng:      newRand(seed),
	}
}

// newRand creates the random number generator for a seed.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
}

// Name of the source, e.g. "train" or "eval".
func (s *Source) Name() string { return s.name }

// Len returns the number of samples.
func (s *Source) Len() int { return s.index.Len() }

// Index returns the ManifestIndex of the source.
func (s *Source) Index() *ManifestIndex { return s.index }

// Pipeline returns the transformations applied to the images, or nil if none.
func (s *Source) Pipeline() *transforms.Pipeline { return s.pipeline }

// Get returns the sample at index, transformed with a random seed drawn from the Source
// generator: repeated calls return different augmentations.
func (s *Source) Get(index int) (Sample, error) {
	s.muRng.Lock()
	seed := s.rng.Uint64()
	s.muRng.Unlock()
	return s.GetSeeded(index, seed)
}

// GetSeeded returns the sample at index, transformed with the random generator seeded with seed.
// The result only depends on index and seed.
//
// It returns an error wrapping ErrOutOfRange for invalid indices, and a *DecodeError if the
// image can't be read or decoded.
func (s *Source) GetSeeded(index int, seed uint64) (Sample, error) {
	if index < 0 || index >= s.Len() {
		return Sample{}, errors.Wrapf(ErrOutOfRange, "%s sample %d, valid range is [0, %d)", s.name, index, s.Len())
	}
	img, err := s.LoadImage(index)
	if err != nil {
		return Sample{}, err
	}
	sample := Sample{Label: int32(s.index.Label(index)), Index: index}
	if s.pipeline == nil {
		sample.Image, err = transforms.ToTensor(img)
	} else {
		sample.Image, err = s.pipeline.Apply(img, newRand(seed))
	}
	if err != nil {
		return Sample{}, errors.WithMessagef(err, "%s sample %d (%q)", s.name, index, s.index.Path(index))
	}
	return sample, nil
}

// LoadImage decodes the image at index, converted to opaque RGB.
func (s *Source) LoadImage(index int) (*image.NRGBA, error) {
	if index < 0 || index >= s.Len() {
		return nil, errors.Wrapf(ErrOutOfRange, "%s image %d, valid range is [0, %d)", s.name, index, s.Len())
	}
	imgPath := s.index.Path(index)
	f, err := s.fs.Open(imgPath)
	if err != nil {
		return nil, &DecodeError{Path: imgPath, Err: err}
	}
	defer func() { _ = f.Close() }()
	img, err := transforms.Decode(f)
	if err != nil {
		return nil, &DecodeError{Path: imgPath, Err: err}
	}
	return transforms.ToRGB(img), nil
}
