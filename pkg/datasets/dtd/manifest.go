// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package dtd

import (
	"bufio"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jiaxue1993/material-classification/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// ManifestIndex is the ordered list of image paths, and their labels, read from manifest files.
// It is immutable and safe for concurrent use.
type ManifestIndex struct {
	paths      []string
	labels     []int
	numClasses int
}

// BuildManifestIndex reads the manifests in order, each one line by line.
//
// Each line is an image path relative to `<datasetRoot>/images`, whose first path element is the
// class name, e.g. "banded/banded_0001.jpg". Trailing white space is ignored, and so are blank lines.
//
// It fails on the first problem found:
//
//   - ErrNotFound: a manifest file doesn't exist.
//   - ErrUnknownClass: a line's class is not in classes.
//   - ErrMissingFile: a listed image doesn't exist, or is not a regular file.
func BuildManifestIndex(fs afero.Fs, manifestPaths []string, datasetRoot string, classes *ClassIndex) (*ManifestIndex, error) {
	m := &ManifestIndex{numClasses: classes.Len()}
	imagesRoot := filepath.Join(datasetRoot, ImagesSubdir)
	for _, manifestPath := range manifestPaths {
		before := len(m.paths)
		if err := m.readManifest(fs, manifestPath, imagesRoot, classes); err != nil {
			return nil, err
		}
		klog.V(2).Infof("manifest %q: %d images", manifestPath, len(m.paths)-before)
	}
	if len(m.paths) != len(m.labels) {
		return nil, errors.Wrapf(ErrLengthMismatch, "indexed %d paths and %d labels from %q", len(m.paths), len(m.labels), manifestPaths)
	}
	return m, nil
}

func (m *ManifestIndex) readManifest(fs afero.Fs, manifestPath, imagesRoot string, classes *ClassIndex) error {
	exists, err := fsutil.IsRegularFile(fs, manifestPath)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(ErrNotFound, "manifest file %q", manifestPath)
	}
	f, err := fs.Open(manifestPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open manifest %q", manifestPath)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), " \t\r\n")
		if line == "" {
			continue
		}
		className, _, _ := strings.Cut(line, "/")
		label, found := classes.ID(className)
		if !found {
			return errors.Wrapf(ErrUnknownClass, "class %q in %s:%d", className, manifestPath, lineNum)
		}
		imagePath := filepath.Join(imagesRoot, line)
		isFile, err := fsutil.IsRegularFile(fs, imagePath)
		if err != nil {
			return errors.WithMessagef(err, "%s:%d", manifestPath, lineNum)
		}
		if !isFile {
			return errors.Wrapf(ErrMissingFile, "image %q listed in %s:%d", imagePath, manifestPath, lineNum)
		}
		m.paths = append(m.paths, imagePath)
		m.labels = append(m.labels, label)
	}
	if err = scanner.Err(); err != nil {
		return errors.Wrapf(err, "failed reading manifest %q", manifestPath)
	}
	return nil
}

// Len returns the number of images.
func (m *ManifestIndex) Len() int { return len(m.paths) }

// NumClasses returns the number of classes of the ClassIndex used to build the index.
func (m *ManifestIndex) NumClasses() int { return m.numClasses }

// Path returns the path of the i-th image. It panics if i is out of range.
func (m *ManifestIndex) Path(i int) string { return m.paths[i] }

// Label returns the class id of the i-th image. It panics if i is out of range.
func (m *ManifestIndex) Label(i int) int { return m.labels[i] }

// Paths returns a copy of the image paths.
func (m *ManifestIndex) Paths() []string { return slices.Clone(m.paths) }

// Labels returns a copy of the labels, aligned with Paths.
func (m *ManifestIndex) Labels() []int { return slices.Clone(m.labels) }

// ClassCounts returns the number of images of each class, indexed by class id.
func (m *ManifestIndex) ClassCounts() []int {
	counts := make([]int, m.numClasses)
	for _, label := range m.labels {
		counts[label]++
	}
	return counts
}
