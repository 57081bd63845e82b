// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package dtd

import (
	"path/filepath"
	"time"

	"github.com/jiaxue1993/material-classification/pkg/dataloader"
	"github.com/jiaxue1993/material-classification/pkg/support/fsutil"
	"github.com/jiaxue1993/material-classification/pkg/transforms"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// TrainPipeline returns the training transformations: random resized crop and random flips,
// followed by the lighting noise and normalization.
func TrainPipeline(cfg Config) (*transforms.Pipeline, error) {
	lighting, err := transforms.NewLighting(cfg.LightingStd, cfg.Lighting)
	if err != nil {
		return nil, err
	}
	normalize, err := transforms.NewNormalize(cfg.Normalize.Mean, cfg.Normalize.Std)
	if err != nil {
		return nil, err
	}
	return transforms.NewPipeline("train").
		Image(
			transforms.NewResize(cfg.ResizeSize),
			transforms.NewRandomResizedCrop(cfg.CropSize),
			transforms.NewRandomHorizontalFlip(0.5),
			transforms.NewRandomVerticalFlip(0.5)).
		Tensor(lighting, normalize), nil
}

// EvalPipeline returns the deterministic evaluation transformations: resize, center crop
// and normalization.
func EvalPipeline(cfg Config) (*transforms.Pipeline, error) {
	normalize, err := transforms.NewNormalize(cfg.Normalize.Mean, cfg.Normalize.Std)
	if err != nil {
		return nil, err
	}
	return transforms.NewPipeline("eval").
		Image(transforms.NewResize(cfg.ResizeSize), transforms.NewCenterCrop(cfg.CropSize)).
		Tensor(normalize), nil
}

// LoaderOption configures NewLoader.
type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	fs                          afero.Fs
	trainPipeline, evalPipeline *transforms.Pipeline
}

// WithFs sets the filesystem to read the dataset from. Default is the OS filesystem.
func WithFs(fs afero.Fs) LoaderOption {
	return func(o *loaderOptions) { o.fs = fs }
}

// WithTrainPipeline replaces the training transformations built from the Config.
func WithTrainPipeline(p *transforms.Pipeline) LoaderOption {
	return func(o *loaderOptions) { o.trainPipeline = p }
}

// WithEvalPipeline replaces the evaluation transformations built from the Config.
func WithEvalPipeline(p *transforms.Pipeline) LoaderOption {
	return func(o *loaderOptions) { o.evalPipeline = p }
}

// Loader of the DTD dataset: it indexes the classes and the train and evaluation manifests
// once, and serves them as batches.
type Loader struct {
	cfg      Config
	seed     uint64
	classes  *ClassIndex
	trainSrc *Source
	evalSrc  *Source
	train    *dataloader.Loader
	eval     *dataloader.Loader
}

// NewLoader validates cfg, indexes the dataset and creates the train and evaluation batch loaders.
//
// Training data are the train and validation manifests of the split, shuffled, with the training
// transformations. Evaluation data is the test manifest of the split, in order, with the evaluation
// transformations.
func NewLoader(cfg Config, opts ...LoaderOption) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := loaderOptions{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}
	var err error
	cfg.DatasetPath, err = fsutil.ReplaceTildeInDir(cfg.DatasetPath)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "dataset_path: %v", err)
	}
	if o.trainPipeline == nil {
		if o.trainPipeline, err = TrainPipeline(cfg); err != nil {
			return nil, err
		}
	}
	if o.evalPipeline == nil {
		if o.evalPipeline, err = EvalPipeline(cfg); err != nil {
			return nil, err
		}
	}

	l := &Loader{cfg: cfg, seed: cfg.Seed}
	if l.seed == 0 {
		l.seed = uint64(time.Now().UnixNano())
		klog.V(1).Infof("dtd: using time based seed %d", l.seed)
	}
	l.classes, err = BuildClassIndex(o.fs, filepath.Join(cfg.DatasetPath, ImagesSubdir))
	if err != nil {
		return nil, err
	}
	trainIndex, err := BuildManifestIndex(o.fs, cfg.TrainManifests(), cfg.DatasetPath, l.classes)
	if err != nil {
		return nil, err
	}
	evalIndex, err := BuildManifestIndex(o.fs, cfg.EvalManifests(), cfg.DatasetPath, l.classes)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("dtd split %q: %d classes, %d train images, %d eval images",
		cfg.Split, l.classes.Len(), trainIndex.Len(), evalIndex.Len())

	l.trainSrc = NewSource("train", o.fs, trainIndex, o.trainPipeline, l.seed)
	l.evalSrc = NewSource("eval", o.fs, evalIndex, o.evalPipeline, l.seed+1)
	l.train = dataloader.New("train", l.trainSrc, dataloader.Options{
		BatchSize:      cfg.BatchSize,
		Shuffle:        true,
		NumWorkers:     cfg.NumWorkers,
		Prefetch:       cfg.Prefetch,
		Seed:           l.seed,
		DropIncomplete: cfg.DropIncomplete,
	})
	l.eval = dataloader.New("eval", l.evalSrc, dataloader.Options{
		BatchSize:  cfg.BatchSize,
		Shuffle:    false,
		NumWorkers: cfg.NumWorkers,
		Prefetch:   cfg.Prefetch,
		Seed:       l.seed + 1,
	})
	return l, nil
}

// GetLoader returns the class names, in id order, and the train and evaluation batch loaders.
func (l *Loader) GetLoader() (classNames []string, train, eval *dataloader.Loader) {
	return l.classes.Names(), l.train, l.eval
}

// Config returns the configuration, with the dataset path expanded.
func (l *Loader) Config() Config { return l.cfg }

// Seed returns the seed in use, the one configured or the time based one.
func (l *Loader) Seed() uint64 { return l.seed }

// Classes returns the class index.
func (l *Loader) Classes() *ClassIndex { return l.classes }

// TrainSource returns the training samples.
func (l *Loader) TrainSource() *Source { return l.trainSrc }

// EvalSource returns the evaluation samples.
func (l *Loader) EvalSource() *Source { return l.evalSrc }

// Close stops the background goroutines of the batch loaders.
func (l *Loader) Close() {
	l.train.Close()
	l.eval.Close()
}
