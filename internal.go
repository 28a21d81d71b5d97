// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package groupkv

import (
	"github.com/groupkv/groupkv/internal/base"
)

// Comparer exports the base.Comparer type.
type Comparer = base.Comparer

// DefaultComparer exports the base.DefaultComparer variable.
var DefaultComparer = base.DefaultComparer

// FilterPolicy exports the base.FilterPolicy type.
type FilterPolicy = base.FilterPolicy

// FilterWriter exports the base.FilterWriter type.
type FilterWriter = base.FilterWriter

// Logger exports the base.Logger type.
type Logger = base.Logger

// DefaultLogger exports the base.DefaultLogger type.
type DefaultLogger = base.DefaultLogger

// LGID exports the base.LGID type.
type LGID = base.LGID

// FileNum exports the base.FileNum type.
type FileNum = base.FileNum

// SeqNum exports the base.SeqNum type.
type SeqNum = base.SeqNum

// InternalKey exports the base.InternalKey type.
type InternalKey = base.InternalKey

// ErrNotFound means that a get call did not find the requested key.
var ErrNotFound = base.ErrNotFound

// ErrCorruption is a marker to indicate that data in a file (WAL, MANIFEST,
// sstable) isn't in the expected format.
var ErrCorruption = base.ErrCorruption

// IsCorruptionError returns true if the given error indicates database
// corruption.
func IsCorruptionError(err error) bool {
	return base.IsCorruptionError(err)
}
