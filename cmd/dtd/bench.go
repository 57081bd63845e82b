// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jiaxue1993/material-classification/pkg/dataloader"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newBenchCommand(lf *loaderFlags) *cobra.Command {
	var (
		numEpochs int
		evalSplit bool
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure the throughput of the data loader",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if numEpochs <= 0 {
				return errors.Errorf("--epochs must be positive, got %d", numEpochs)
			}
			loader, err := lf.newLoader(cmd)
			if err != nil {
				return err
			}
			defer loader.Close()
			_, ds, evalDS := loader.GetLoader()
			if evalSplit {
				ds = evalDS
			}
			result, err := benchmark(cmd.ErrOrStderr(), ds, numEpochs)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result)
			return err
		},
	}
	cmd.Flags().IntVar(&numEpochs, "epochs", 1, "Number of epochs to read.")
	cmd.Flags().BoolVar(&evalSplit, "eval", false, "Benchmark the evaluation loader instead of the training one.")
	return cmd
}

type benchResult struct {
	name                          string
	epochs, numBatches, numImages int
	elapsed                       time.Duration
}

func (r benchResult) String() string {
	rate := float64(r.numImages) / max(r.elapsed.Seconds(), 1e-9)
	return fmt.Sprintf("%s: %d epochs, %s batches, %s images in %s: %s images/s",
		r.name, r.epochs, humanize.Comma(int64(r.numBatches)), humanize.Comma(int64(r.numImages)),
		r.elapsed.Round(time.Millisecond), humanize.CommafWithDigits(rate, 1))
}

// benchmark reads numEpochs epochs of ds, resetting it in between.
func benchmark(progressWriter io.Writer, ds *dataloader.Loader, numEpochs int) (benchResult, error) {
	result := benchResult{name: ds.Name(), epochs: numEpochs}
	bar := newProgressBar(progressWriter, ds.NumBatches()*numEpochs, ds.Name(), "batches")
	start := time.Now()
	for epoch := range numEpochs {
		if epoch > 0 {
			ds.Reset()
		}
		for {
			_, inputs, labels, err := ds.Yield()
			if err == io.EOF {
				break
			}
			if err != nil {
				return result, errors.WithMessagef(err, "epoch %d, batch %d", epoch, result.numBatches)
			}
			result.numBatches++
			result.numImages += inputs[0].Shape().Dimensions[0]
			for _, t := range append(inputs, labels...) {
				t.MustFinalizeAll()
			}
			_ = bar.Add(1)
		}
	}
	result.elapsed = time.Since(start)
	return result, nil
}
