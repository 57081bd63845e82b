// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

package dtd

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by the dataset. They are wrapped with context, so check them with errors.Is.
var (
	// ErrNotFound is returned when the images directory or a manifest file doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrMissingFile is returned when an image listed in a manifest doesn't exist.
	ErrMissingFile = errors.New("missing image file")

	// ErrUnknownClass is returned when a manifest line refers to a class without a directory.
	ErrUnknownClass = errors.New("unknown class")

	// ErrLengthMismatch is returned if the number of indexed paths and labels differ.
	ErrLengthMismatch = errors.New("number of paths and labels differ")

	// ErrOutOfRange is returned for sample indices outside of [0, Len()).
	ErrOutOfRange = errors.New("index out of range")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDecode is matched by any *DecodeError.
	ErrDecode = errors.New("failed to decode image")
)

// DecodeError is returned when an image file exists but can't be read or decoded.
type DecodeError struct {
	Path string
	Err  error
}

// Error implements error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) true for any *DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
