// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package dtd

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/jiaxue1993/material-classification/pkg/transforms"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	// ImagesSubdir is the directory under the dataset root with one subdirectory per class.
	ImagesSubdir = "images"

	// LabelsSubdir is the directory under the dataset root with the manifest files.
	LabelsSubdir = "labels"
)

// NormalizeConfig holds the per-channel statistics used to normalize the images.
type NormalizeConfig struct {
	Mean [3]float64 `yaml:"mean"`
	Std  [3]float64 `yaml:"std"`
}

// Config of the DTD Loader. Create it with DefaultConfig, or load it with LoadConfig,
// and set at least DatasetPath.
type Config struct {
	// DatasetPath is the root of the dataset, with the "images" and "labels" subdirectories.
	// A leading "~" is expanded to the home directory.
	DatasetPath string `yaml:"dataset_path"`

	// Split selects the manifests: labels/train<Split>.txt, labels/val<Split>.txt and labels/test<Split>.txt.
	Split string `yaml:"split"`

	BatchSize int `yaml:"batch_size"`

	// NumWorkers is the number of images decoded in parallel. 0 decodes them in the goroutine
	// producing the batch.
	NumWorkers int `yaml:"num_workers"`

	// Prefetch is the number of batches prepared ahead of time.
	Prefetch int `yaml:"prefetch"`

	// ResizeSize is the size of the shorter side of the images, before cropping.
	ResizeSize int `yaml:"resize_size"`

	// CropSize is the height and width of the images yielded.
	CropSize int `yaml:"crop_size"`

	// LightingStd is the standard deviation of the PCA lighting noise used in training.
	// 0 disables it.
	LightingStd float64 `yaml:"lighting_std"`

	// Seed for shuffling and augmentation. 0 uses a time based seed.
	Seed uint64 `yaml:"seed"`

	Normalize NormalizeConfig `yaml:"normalize"`

	// Lighting is the color eigen basis used by the lighting noise.
	Lighting transforms.EigenBasis `yaml:"lighting"`

	// DropIncomplete drops the last training batch of each epoch if it's incomplete.
	DropIncomplete bool `yaml:"drop_incomplete"`
}

// DefaultConfig returns the default configuration, with an empty DatasetPath.
func DefaultConfig() Config {
	return Config{
		Split:      "1",
		BatchSize:  64,
		NumWorkers: 8,
		Prefetch:   2,
		ResizeSize: 256,
		CropSize:   224,
		Normalize: NormalizeConfig{
			Mean: transforms.ImageNetMean,
			Std:  transforms.ImageNetStd,
		},
		Lighting: transforms.ImageNetPCA,
	}
}

// LoadConfig reads a YAML configuration file over the DefaultConfig.
// Unknown fields are an error. The configuration is not validated.
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	cfg := DefaultConfig()
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read configuration %q", path)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(contents))
	decoder.KnownFields(true)
	if err = decoder.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(ErrInvalidConfig, "failed to parse %q: %v", path, err)
	}
	return cfg, nil
}

// Validate returns an error wrapping ErrInvalidConfig describing the first invalid field.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.Wrap(ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	switch {
	case c.DatasetPath == "":
		return invalid("dataset_path is required")
	case c.Split == "" || strings.ContainsAny(c.Split, `/\`) || strings.Contains(c.Split, ".."):
		return invalid("split %q must be a non-empty file name suffix", c.Split)
	case c.BatchSize <= 0:
		return invalid("batch_size=%d must be > 0", c.BatchSize)
	case c.NumWorkers < 0:
		return invalid("num_workers=%d must be >= 0", c.NumWorkers)
	case c.Prefetch < 0:
		return invalid("prefetch=%d must be >= 0", c.Prefetch)
	case c.ResizeSize <= 0:
		return invalid("resize_size=%d must be > 0", c.ResizeSize)
	case c.CropSize <= 0 || c.CropSize > c.ResizeSize:
		return invalid("crop_size=%d must be in (0, resize_size=%d]", c.CropSize, c.ResizeSize)
	case math.IsNaN(c.LightingStd) || math.IsInf(c.LightingStd, 0) || c.LightingStd < 0:
		return invalid("lighting_std=%g must be >= 0", c.LightingStd)
	}
	if _, err := transforms.NewNormalize(c.Normalize.Mean, c.Normalize.Std); err != nil {
		return invalid("normalize: %v", err)
	}
	if err := c.Lighting.Validate(); err != nil {
		return invalid("lighting: %v", err)
	}
	return nil
}

// manifestPath returns the path of the manifest for the given kind ("train", "val" or "test").
func (c Config) manifestPath(kind string) string {
	return filepath.Join(c.DatasetPath, LabelsSubdir, kind+c.Split+".txt")
}

// TrainManifests returns the manifests of the training data: the train and validation lists.
func (c Config) TrainManifests() []string {
	return []string{c.manifestPath("train"), c.manifestPath("val")}
}

// EvalManifests returns the manifests of the evaluation data: the test list.
func (c Config) EvalManifests() []string {
	return []string{c.manifestPath("test")}
}
