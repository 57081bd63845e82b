// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/jiaxue1993/material-classification/pkg/datasets/dtd"
	"github.com/spf13/cobra"
)

func newDownloadCommand() *cobra.Command {
	var (
		dir          string
		showProgress bool
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download and extract the dataset, and print its root directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := dtd.Download(cmd.Context(), appFs, dir, showProgress)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), root)
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "~/work", "Directory where to download and extract the dataset.")
	cmd.Flags().BoolVar(&showProgress, "progress", true, "Display a progress bar while downloading.")
	return cmd
}
