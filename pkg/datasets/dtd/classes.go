// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package dtd

import (
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/jiaxue1993/material-classification/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// ClassIndex maps class names, the subdirectories of the images directory, to ids.
//
// Ids are assigned in ascending (byte-wise) order of the names, so they are reproducible
// for the same directory listing. It is immutable and safe for concurrent use.
type ClassIndex struct {
	names []string
	ids   map[string]int
}

// NewClassIndex creates a ClassIndex from the given class names, sorted. Duplicates are an error.
func NewClassIndex(names []string) (*ClassIndex, error) {
	c := &ClassIndex{
		names: slices.Clone(names),
		ids:   make(map[string]int, len(names)),
	}
	sort.Strings(c.names)
	for id, name := range c.names {
		if _, found := c.ids[name]; found {
			return nil, errors.Errorf("duplicate class name %q", name)
		}
		c.ids[name] = id
	}
	return c, nil
}

// BuildClassIndex lists the directories directly under imagesRoot: each one is a class.
// Regular files are ignored, and symbolic links are followed.
//
// It returns an error wrapping ErrNotFound if imagesRoot is not an existing directory.
func BuildClassIndex(fs afero.Fs, imagesRoot string) (*ClassIndex, error) {
	isDir, err := fsutil.IsDir(fs, imagesRoot)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, errors.Wrapf(ErrNotFound, "images directory %q", imagesRoot)
	}
	entries, err := afero.ReadDir(fs, imagesRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list images directory %q", imagesRoot)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		entryIsDir := entry.IsDir()
		if !entryIsDir && entry.Mode()&os.ModeSymlink != 0 {
			entryIsDir, err = fsutil.IsDir(fs, filepath.Join(imagesRoot, entry.Name()))
			if err != nil {
				return nil, err
			}
		}
		if !entryIsDir {
			klog.V(2).Infof("ignoring non-directory %q in images directory %q", entry.Name(), imagesRoot)
			continue
		}
		names = append(names, entry.Name())
	}
	classes, err := NewClassIndex(names)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("found %d classes in %q", classes.Len(), imagesRoot)
	return classes, nil
}

// Len returns the number of classes.
func (c *ClassIndex) Len() int { return len(c.names) }

// Names returns a copy of the class names, in id order.
func (c *ClassIndex) Names() []string { return slices.Clone(c.names) }

// ID returns the id of the class name, and whether it was found.
func (c *ClassIndex) ID(name string) (int, bool) {
	id, found := c.ids[name]
	return id, found
}

// Name returns the name of the class id. It panics if id is out of range.
func (c *ClassIndex) Name(id int) string { return c.names[id] }
