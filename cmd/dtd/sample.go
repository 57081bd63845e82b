// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/jiaxue1993/material-classification/pkg/datasets/dtd"
	"github.com/jiaxue1993/material-classification/pkg/transforms"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newSampleCommand(lf *loaderFlags) *cobra.Command {
	var (
		numSamples int
		outDir     string
		fromTrain  bool
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Save transformed samples as PNG images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, err := lf.newLoader(cmd)
			if err != nil {
				return err
			}
			defer loader.Close()
			src := loader.EvalSource()
			if fromTrain {
				src = loader.TrainSource()
			}
			paths, err := writeSamples(src, loader.Classes(), loader.Config().Normalize, numSamples, outDir)
			for _, p := range paths {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&numSamples, "n", 8, "Number of samples to write.")
	cmd.Flags().StringVar(&outDir, "out", "samples", "Directory where to write the samples.")
	cmd.Flags().BoolVar(&fromTrain, "train", false, "Sample the training images, with random augmentation. "+
		"By default it samples the evaluation images.")
	return cmd
}

// writeSamples writes the first numSamples samples of src to outDir, after undoing the normalization.
// It returns the paths written.
func writeSamples(src *dtd.Source, classes *dtd.ClassIndex, normCfg dtd.NormalizeConfig, numSamples int, outDir string) ([]string, error) {
	norm, err := transforms.NewNormalize(normCfg.Mean, normCfg.Std)
	if err != nil {
		return nil, err
	}
	if err = appFs.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %q", outDir)
	}
	numSamples = min(numSamples, src.Len())
	paths := make([]string, 0, numSamples)
	for ii := range numSamples {
		sample, err := src.Get(ii)
		if err != nil {
			return paths, err
		}
		img, err := sampleToImage(sample.Image, norm)
		sample.Image.MustFinalizeAll()
		if err != nil {
			return paths, errors.WithMessagef(err, "%s sample %d", src.Name(), ii)
		}
		p := filepath.Join(outDir, fmt.Sprintf("%s_%03d_%s.png", src.Name(), ii, classes.Name(int(sample.Label))))
		if err = saveImage(p, img); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func sampleToImage(t *tensors.Tensor, norm *transforms.Normalize) (image.Image, error) {
	restored, err := norm.Invert(t)
	if err != nil {
		return nil, err
	}
	defer restored.MustFinalizeAll()
	var img image.Image
	err = exceptions.TryCatch[error](func() { img = timage.ToImage().Single(restored) })
	return img, err
}

func saveImage(path string, img image.Image) error {
	f, err := appFs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	if err = imaging.Encode(f, img, imaging.PNG); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to encode %q", path)
	}
	return errors.Wrapf(f.Close(), "failed to close %q", path)
}
