// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities for working with the file system.
//
// All functions take an afero.Fs, so the dataset indexing code can run against the real
// file system (afero.NewOsFs) or an in-memory one (afero.NewMemMapFs) in tests.
package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// FileExists returns whether the file or directory exists, or an error if something
// went wrong in the filesystem.
func FileExists(fs afero.Fs, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// MustFileExists returns whether the file or directory exists.
// It panics on file system errors.
func MustFileExists(fs afero.Fs, path string) bool {
	exists, err := FileExists(fs, path)
	if err != nil {
		panic(err)
	}
	return exists
}

// IsDir returns whether path exists and is a directory (symbolic links are followed).
func IsDir(fs afero.Fs, path string) (bool, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to stat %q", path)
	}
	return info.IsDir(), nil
}

// IsRegularFile returns whether path exists and is not a directory.
func IsRegularFile(fs afero.Fs, path string) (bool, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to stat %q", path)
	}
	return !info.IsDir(), nil
}

// ReplaceTildeInDir replaces a leading "~" or "~user" by the corresponding home directory.
// Paths not starting with "~" are returned unchanged.
func ReplaceTildeInDir(dir string) (string, error) {
	if !strings.HasPrefix(dir, "~") {
		return dir, nil
	}
	rest := dir[1:]
	userName, tail, _ := strings.Cut(rest, "/")
	var (
		usr *user.User
		err error
	)
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
	}
	return filepath.Join(usr.HomeDir, tail), nil
}

// MustReplaceTildeInDir is like ReplaceTildeInDir, but panics on error.
func MustReplaceTildeInDir(dir string) string {
	dir, err := ReplaceTildeInDir(dir)
	if err != nil {
		panic(err)
	}
	return dir
}

// FileSHA256 returns the hex encoded sha256 of the contents of path.
func FileSHA256(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %q", path)
	}
	defer func() { _ = f.Close() }()
	hasher := sha256.New()
	if _, err = io.Copy(hasher, f); err != nil {
		return "", errors.Wrapf(err, "failed to read %q", path)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ValidateChecksum returns an error if the sha256 of the file doesn't match wantHash.
func ValidateChecksum(fs afero.Fs, path, wantHash string) error {
	got, err := FileSHA256(fs, path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, wantHash) {
		return errors.Errorf("file %q has sha256 %q, wanted %q: file is corrupt or the source changed", path, got, wantHash)
	}
	return nil
}
