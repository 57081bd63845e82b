// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/jiaxue1993/material-classification/internal/plots"
	"github.com/jiaxue1993/material-classification/pkg/datasets/dtd"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newIndexCommand(lf *loaderFlags) *cobra.Command {
	var csvPath, plotPath string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "List the classes of the split with their number of examples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, err := lf.newLoader(cmd)
			if err != nil {
				return err
			}
			defer loader.Close()
			trainCounts := loader.TrainSource().Index().ClassCounts()
			evalCounts := loader.EvalSource().Index().ClassCounts()
			printClassTable(cmd.OutOrStdout(), loader, trainCounts, evalCounts)

			if csvPath != "" {
				if err := writeIndexCSV(csvPath, loader); err != nil {
					return err
				}
			}
			if plotPath != "" {
				title := fmt.Sprintf("DTD split %s", loader.Config().Split)
				err := plots.SaveClassHistogram(plotPath, title, loader.Classes().Names(),
					plots.Series{Name: "train+val", Counts: trainCounts},
					plots.Series{Name: "test", Counts: evalCounts})
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "If set, the index (split, path, label and class of each example) is saved as CSV to this file.")
	cmd.Flags().StringVar(&plotPath, "plot", "", "If set, a bar chart of the examples per class is saved to this file (.png, .svg or .pdf).")
	return cmd
}

func printClassTable(w io.Writer, loader *dtd.Loader, trainCounts, evalCounts []int) {
	table := newClassTable(lipgloss.Right, lipgloss.Left, lipgloss.Right)
	table.Table.Headers("id", "class", "train+val", "test", "total")
	var trainTotal, evalTotal int
	for id, name := range loader.Classes().Names() {
		total := trainCounts[id] + evalCounts[id]
		table.Row(total == 0, strconv.Itoa(id), name,
			humanize.Comma(int64(trainCounts[id])), humanize.Comma(int64(evalCounts[id])), humanize.Comma(int64(total)))
		trainTotal += trainCounts[id]
		evalTotal += evalCounts[id]
	}
	table.Row(false, "", "all",
		humanize.Comma(int64(trainTotal)), humanize.Comma(int64(evalTotal)), humanize.Comma(int64(trainTotal+evalTotal)))
	_, _ = fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("DTD split %s: %s", loader.Config().Split, loader.Config().DatasetPath)))
	_, _ = fmt.Fprintln(w, table.Table.Render())
}

// indexDataFrame returns the examples of both the train and eval sources, in loader order.
func indexDataFrame(loader *dtd.Loader) dataframe.DataFrame {
	var splits, paths, classNames []string
	var labels []int
	for _, src := range []*dtd.Source{loader.TrainSource(), loader.EvalSource()} {
		index := src.Index()
		for ii := range index.Len() {
			splits = append(splits, src.Name())
			paths = append(paths, index.Path(ii))
			labels = append(labels, index.Label(ii))
			classNames = append(classNames, loader.Classes().Name(index.Label(ii)))
		}
	}
	return dataframe.New(
		series.New(splits, series.String, "split"),
		series.New(paths, series.String, "path"),
		series.New(labels, series.Int, "label"),
		series.New(classNames, series.String, "class"),
	)
}

func writeIndexCSV(path string, loader *dtd.Loader) error {
	df := indexDataFrame(loader)
	if df.Err != nil {
		return errors.Wrap(df.Err, "failed to build index data frame")
	}
	f, err := appFs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	if err = df.WriteCSV(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write CSV to %q", path)
	}
	return errors.Wrapf(f.Close(), "failed to close %q", path)
}
