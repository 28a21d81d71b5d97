// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
)

// ErrNotFound means that a requested entity (key, file, directory entry) was
// not found.
var ErrNotFound = errors.New("groupkv: not found")

// ErrCorruption is a marker to indicate that data in a file (WAL, MANIFEST,
// sstable) isn't in the expected format.
var ErrCorruption = errors.New("groupkv: corruption")

// ErrInvalidArgument is a marker for errors caused by the caller handing the
// engine something it cannot use.
var ErrInvalidArgument = errors.New("groupkv: invalid argument")

// CorruptionErrorf formats according to a format specifier and returns the
// string as an error marked with ErrCorruption.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// MarkCorruptionError marks the given error with ErrCorruption.
func MarkCorruptionError(err error) error {
	if errors.Is(err, ErrCorruption) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}

// IsCorruptionError returns true if the given error indicates database
// corruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// IsNotFoundError returns true if the given error indicates that a file or
// key does not exist, whether reported by this package or by the filesystem.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || oserror.IsNotExist(err)
}
