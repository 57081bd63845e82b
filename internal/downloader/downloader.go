// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

// Package downloader provides functions for downloading and extracting dataset archives.
//
// Files are written through an afero.Fs, so everything but the HTTP transfer can be exercised
// with an in-memory filesystem.
package downloader

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jiaxue1993/material-classification/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// copyBytesBar copies bytes from an io.Reader to an io.Writer while displaying a progressbar.
// It requires knowing the contentLength.
type copyBytesBar struct {
	w                             io.Writer
	bar                           *progressbar.ProgressBar
	contentLength, amountWritten  int64
	barUnit, numUnits, addedUnits int64
}

// newCopyBytesBar creates a new copyBytesBar. It requires knowing the contentLength.
func newCopyBytesBar(w io.Writer, contentLength int64) *copyBytesBar {
	bar := &copyBytesBar{w: w, contentLength: contentLength}
	bar.barUnit = 1
	for contentLength > bar.barUnit*1024*1024 {
		bar.barUnit *= 1024
	}
	bar.numUnits = (contentLength + bar.barUnit - 1) / bar.barUnit
	bar.bar = progressbar.NewOptions(int(bar.numUnits),
		progressbar.OptionSetDescription(humanize.Bytes(uint64(contentLength))),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
	return bar
}

// Write implements io.Writer, while updating the progress bar.
func (bar *copyBytesBar) Write(p []byte) (n int, err error) {
	n, err = bar.w.Write(p)
	bar.amountWritten += int64(n)
	toUnits := bar.amountWritten / bar.barUnit
	if toUnits > bar.addedUnits {
		_ = bar.bar.Add(int(toUnits - bar.addedUnits))
		bar.addedUnits = toUnits
	}
	return
}

// CopyWithProgressBar is similar to io.Copy, but updates the progress bar with the amount
// of data copied.
//
// If contentLength is unknown (<= 0) it falls back to a plain io.Copy.
func CopyWithProgressBar(dst io.Writer, src io.Reader, contentLength int64) (n int64, err error) {
	if contentLength <= 0 {
		return io.Copy(dst, src)
	}
	bar := newCopyBytesBar(dst, contentLength)
	n, err = io.Copy(bar, src)
	if bar.addedUnits < bar.numUnits {
		_ = bar.bar.Add(int(bar.numUnits - bar.addedUnits))
	}
	_ = bar.bar.Close()
	fmt.Println()
	return
}

// Downloader fetches files over HTTP into an afero.Fs.
type Downloader struct {
	fs              afero.Fs
	client          *http.Client
	showProgressBar bool
}

// New creates a Downloader writing to fs.
func New(fs afero.Fs) *Downloader {
	return &Downloader{
		fs: fs,
		client: &http.Client{
			CheckRedirect: func(r *http.Request, via []*http.Request) error {
				r.URL.Opaque = r.URL.Path
				return nil
			},
		},
	}
}

// WithProgressBar enables a progress bar on stdout while downloading.
// It returns the Downloader, so configuration calls can be cascaded.
func (d *Downloader) WithProgressBar(show bool) *Downloader {
	d.showProgressBar = show
	return d
}

// WithClient sets the HTTP client used for downloads.
// It returns the Downloader, so configuration calls can be cascaded.
func (d *Downloader) WithClient(client *http.Client) *Downloader {
	d.client = client
	return d
}

// Download file from url and save it at the given path.
// It creates the directory if it doesn't yet exist. On failure the partial file is removed.
func (d *Downloader) Download(ctx context.Context, url, filePath string) (size int64, err error) {
	if err = d.fs.MkdirAll(filepath.Dir(filePath), 0o777); err != nil {
		return 0, errors.Wrapf(err, "failed to create the directory for the path %q", filepath.Dir(filePath))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid download url %q", url)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "failed downloading %q", url)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("failed downloading %q: http status %s", url, resp.Status)
	}

	file, err := d.fs.Create(filePath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed creating file %q", filePath)
	}
	if d.showProgressBar {
		size, err = CopyWithProgressBar(file, resp.Body, resp.ContentLength)
	} else {
		size, err = io.Copy(file, resp.Body)
	}
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		_ = d.fs.Remove(filePath)
		return 0, errors.Wrapf(err, "downloading %q to %q", url, filePath)
	}
	klog.V(1).Infof("downloaded %s from %q to %q", humanize.Bytes(uint64(size)), url, filePath)
	return size, nil
}

// DownloadIfMissing checks whether filePath exists already, and if not it downloads the file
// from the given URL.
//
// If checkHash is provided, it checks that the file has the sha256 hash or fails.
func (d *Downloader) DownloadIfMissing(ctx context.Context, url, filePath, checkHash string) error {
	exists, err := fsutil.FileExists(d.fs, filePath)
	if err != nil {
		return err
	}
	if !exists {
		if d.showProgressBar {
			fmt.Printf("Downloading %s ...\n", url)
		}
		if _, err = d.Download(ctx, url, filePath); err != nil {
			return err
		}
	}
	if checkHash == "" {
		return nil
	}
	return fsutil.ValidateChecksum(d.fs, filePath, checkHash)
}

// DownloadAndUntarIfMissing downloads tarFile from the given url, if the file is not there yet,
// and then extracts it under baseDir if targetUntarDir is missing.
//
// Relative tarFile and targetUntarDir are taken relative to baseDir.
// If checkHash is provided, it checks that the file has the sha256 hash or fails.
func (d *Downloader) DownloadAndUntarIfMissing(ctx context.Context, url, baseDir, tarFile, targetUntarDir, checkHash string) error {
	if !filepath.IsAbs(tarFile) {
		tarFile = filepath.Join(baseDir, tarFile)
	}
	if !filepath.IsAbs(targetUntarDir) {
		targetUntarDir = filepath.Join(baseDir, targetUntarDir)
	}
	exists, err := fsutil.FileExists(d.fs, targetUntarDir)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err = d.DownloadIfMissing(ctx, url, tarFile, checkHash); err != nil {
		return err
	}
	if err = Untar(d.fs, baseDir, tarFile); err != nil {
		return err
	}
	if exists, err = fsutil.IsDir(d.fs, targetUntarDir); err != nil {
		return err
	} else if !exists {
		return errors.Errorf("downloaded from %q and untar'ed %q, but didn't get directory %q", url, tarFile, targetUntarDir)
	}
	return nil
}

// Untar extracts tarFile into baseDir. Files ending in ".gz" or ".tgz" are decompressed with gzip.
//
// Only directories and regular files are extracted: other entry types are skipped. Entries that
// would land outside baseDir are an error.
func Untar(fs afero.Fs, baseDir, tarFile string) error {
	f, err := fs.Open(tarFile)
	if err != nil {
		return errors.Wrapf(err, "failed to open %q", tarFile)
	}
	defer func() { _ = f.Close() }()
	var r io.Reader = f
	if strings.HasSuffix(tarFile, ".gz") || strings.HasSuffix(tarFile, ".tgz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "failed to un-gzip %q", tarFile)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	if err = ExtractTar(fs, baseDir, r); err != nil {
		return errors.WithMessagef(err, "while extracting %q", tarFile)
	}
	return nil
}

// ExtractTar extracts the tar stream r into baseDir.
func ExtractTar(fs afero.Fs, baseDir string, r io.Reader) error {
	baseDir = filepath.Clean(baseDir)
	tr := tar.NewReader(r)
	var numFiles int
	var numBytes int64
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "failed to read tar entry")
		}
		target := filepath.Join(baseDir, header.Name)
		if target != baseDir && !strings.HasPrefix(target, baseDir+string(filepath.Separator)) {
			return errors.Errorf("tar entry %q escapes the target directory %q", header.Name, baseDir)
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err = fs.MkdirAll(target, 0o755); err != nil {
				return errors.Wrapf(err, "failed to create directory %q", target)
			}
		case tar.TypeReg:
			if err = fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errors.Wrapf(err, "failed to create directory %q", filepath.Dir(target))
			}
			perm := os.FileMode(header.Mode).Perm() | 0o600
			out, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
			if err != nil {
				return errors.Wrapf(err, "failed to create %q", target)
			}
			n, err := io.Copy(out, tr)
			if closeErr := out.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return errors.Wrapf(err, "failed to write %q", target)
			}
			numFiles++
			numBytes += n
		default:
			klog.V(2).Infof("skipping tar entry %q of type %q", header.Name, string(header.Typeflag))
		}
	}
	klog.V(1).Infof("extracted %d files (%s) into %q", numFiles, humanize.Bytes(uint64(numBytes)), baseDir)
	return nil
}
