// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package dtd

import (
	"context"
	"path/filepath"

	"github.com/jiaxue1993/material-classification/internal/downloader"
	"github.com/jiaxue1993/material-classification/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var (
	// DownloadURL of the DTD release archive.
	DownloadURL = "https://www.robots.ox.ac.uk/~vgg/data/dtd/download/dtd-r1.0.1.tar.gz"

	// DownloadSubdir is where the archive is saved, under the base directory.
	DownloadSubdir = "downloads"

	// DownloadFile is the name of the archive.
	DownloadFile = "dtd-r1.0.1.tar.gz"

	// DownloadChecksum is the sha256 of the archive. Empty skips the verification.
	DownloadChecksum = ""

	// UntarDir is the directory created when extracting the archive: the dataset root.
	UntarDir = "dtd"
)

// Download the DTD archive to baseDir, if not there yet, and extract it, if not extracted yet.
// A leading "~" in baseDir is expanded to the home directory.
//
// It returns the dataset root, to be used as Config.DatasetPath.
func Download(ctx context.Context, fs afero.Fs, baseDir string, showProgressBar bool) (string, error) {
	baseDir, err := fsutil.ReplaceTildeInDir(baseDir)
	if err != nil {
		return "", err
	}
	d := downloader.New(fs).WithProgressBar(showProgressBar)
	tarFile := filepath.Join(DownloadSubdir, DownloadFile)
	url := DownloadURL
	if err = d.DownloadAndUntarIfMissing(ctx, url, baseDir, tarFile, UntarDir, DownloadChecksum); err != nil {
		return "", errors.WithMessagef(err, "failed to download and extract DTD from %q", url)
	}
	return filepath.Join(baseDir, UntarDir), nil
}
