// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/jiaxue1993/material-classification/pkg/colorstats"
	"github.com/jiaxue1993/material-classification/pkg/datasets/dtd"
	"github.com/jiaxue1993/material-classification/pkg/transforms"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// colorStats is the output of the stats command. Its fields use the same YAML keys as
// dtd.Config, so it can be pasted into a configuration file.
type colorStats struct {
	Normalize dtd.NormalizeConfig   `yaml:"normalize"`
	Lighting  transforms.EigenBasis `yaml:"lighting"`
}

func newStatsCommand(lf *loaderFlags) *cobra.Command {
	var (
		maxImages, resize int
		outPath           string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Compute the color mean, standard deviation and PCA basis of the training images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, err := lf.newLoader(cmd)
			if err != nil {
				return err
			}
			defer loader.Close()
			stats, err := computeColorStats(cmd.ErrOrStderr(), loader.TrainSource(), maxImages, resize)
			if err != nil {
				return err
			}
			contents, err := yaml.Marshal(stats)
			if err != nil {
				return errors.Wrap(err, "failed to encode color statistics")
			}
			if _, err = cmd.OutOrStdout().Write(contents); err != nil {
				return err
			}
			if outPath != "" {
				if err = afero.WriteFile(appFs, outPath, contents, 0o644); err != nil {
					return errors.Wrapf(err, "failed to write color statistics to %q", outPath)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxImages, "max", 0, "Maximum number of training images to use. 0 uses all of them.")
	cmd.Flags().IntVar(&resize, "resize", 0, "If > 0, images are resized so their shorter side has this size before being accounted.")
	cmd.Flags().StringVar(&outPath, "out", "", "If set, the statistics are also saved as YAML to this file.")
	return cmd
}

// computeColorStats accumulates the colors of the first maxImages images of src, without any
// augmentation or normalization.
func computeColorStats(progressWriter io.Writer, src *dtd.Source, maxImages, resize int) (*colorStats, error) {
	numImages := src.Len()
	if maxImages > 0 {
		numImages = min(numImages, maxImages)
	}
	var resizeOp *transforms.Resize
	if resize > 0 {
		resizeOp = transforms.NewResize(resize)
	}
	var acc colorstats.Accumulator
	bar := newProgressBar(progressWriter, numImages, "color statistics", "images")
	for ii := range numImages {
		img, err := src.LoadImage(ii)
		if err != nil {
			return nil, err
		}
		var t *tensors.Tensor
		if resizeOp != nil {
			t, err = transforms.ToTensor(resizeOp.ApplyImage(img, nil))
		} else {
			t, err = transforms.ToTensor(img)
		}
		if err != nil {
			return nil, err
		}
		err = acc.Add(t)
		t.MustFinalizeAll()
		if err != nil {
			return nil, err
		}
		_ = bar.Add(1)
	}
	klog.Infof("color statistics over %d images, %s pixels", numImages, humanize.Comma(acc.Count()))

	stats := &colorStats{}
	stats.Normalize.Mean = acc.Mean()
	stats.Normalize.Std = acc.Std()
	var err error
	stats.Lighting, err = acc.PCA()
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to compute PCA over %d images", numImages)
	}
	return stats, nil
}

