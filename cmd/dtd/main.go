// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

// dtd is a command-line tool to download the Describable Textures Dataset, inspect its splits,
// compute color statistics and sample or benchmark the data loaders.
package main

import (
	"context"
	goflag "flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/jiaxue1993/material-classification/pkg/datasets/dtd"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

// appFs is the filesystem the dataset is read from, and outputs are written to.
var appFs = afero.NewOsFs()

// loaderFlags are the flags shared by all the commands that build a dtd.Loader.
type loaderFlags struct {
	configPath, dataDir, split string
	batchSize, numWorkers      int
	seed                       uint64
}

func (f *loaderFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.configPath, "config", "", "YAML configuration file. Flags explicitly set override its values.")
	flags.StringVar(&f.dataDir, "data", "~/work/dtd", "Root of the dataset, with the images/ and labels/ subdirectories.")
	flags.StringVar(&f.split, "split", "1", "Split to use, from 1 to 10.")
	flags.IntVar(&f.batchSize, "batch", 64, "Batch size.")
	flags.IntVar(&f.numWorkers, "workers", 8, "Number of images decoded in parallel.")
	flags.Uint64Var(&f.seed, "seed", 0, "Seed for shuffling and augmentation. 0 uses a time based seed.")
}

// config returns the configuration from the --config file, if given, overridden by the flags
// set in the command line.
func (f *loaderFlags) config(cmd *cobra.Command) (dtd.Config, error) {
	cfg := dtd.DefaultConfig()
	flags := cmd.Flags()
	if f.configPath != "" {
		var err error
		cfg, err = dtd.LoadConfig(appFs, f.configPath)
		if err != nil {
			return cfg, err
		}
	}
	if f.configPath == "" || flags.Changed("data") {
		cfg.DatasetPath = f.dataDir
	}
	if f.configPath == "" || flags.Changed("split") {
		cfg.Split = f.split
	}
	if f.configPath == "" || flags.Changed("batch") {
		cfg.BatchSize = f.batchSize
	}
	if f.configPath == "" || flags.Changed("workers") {
		cfg.NumWorkers = f.numWorkers
	}
	if f.configPath == "" || flags.Changed("seed") {
		cfg.Seed = f.seed
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLoader builds the dtd.Loader configured by the flags.
func (f *loaderFlags) newLoader(cmd *cobra.Command) (*dtd.Loader, error) {
	cfg, err := f.config(cmd)
	if err != nil {
		return nil, err
	}
	loader, err := dtd.NewLoader(cfg, dtd.WithFs(appFs))
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create DTD loader")
	}
	return loader, nil
}

// newRootCommand creates the dtd command tree. goFlags, if not nil, are exposed as global flags:
// main uses it for the klog flags.
func newRootCommand(goFlags *goflag.FlagSet) *cobra.Command {
	lf := &loaderFlags{}
	root := &cobra.Command{
		Use:           "dtd",
		Short:         "Describable Textures Dataset (DTD) tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `dtd downloads the Describable Textures Dataset and exercises its data loaders:
it lists the classes of a split, computes color statistics, writes augmented samples
and benchmarks the loading throughput.`,
	}
	lf.register(root.PersistentFlags())
	if goFlags != nil {
		root.PersistentFlags().AddGoFlagSet(goFlags)
	}
	root.AddCommand(
		newDownloadCommand(),
		newIndexCommand(lf),
		newStatsCommand(lf),
		newSampleCommand(lf),
		newBenchCommand(lf),
	)
	return root
}

func main() {
	klog.InitFlags(nil)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := newRootCommand(goflag.CommandLine).ExecuteContext(ctx)
	klog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
