// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

// FilterWriter provides an interface for creating filter blocks. See
// FilterPolicy for more details about filters.
type FilterWriter interface {
	// AddKey adds a key to the current filter block.
	AddKey(key []byte)

	// Finish appends to dst an encoded filter that holds the current set of
	// keys. The writer state is reset after the call to Finish allowing the
	// writer to be reused for the creation of additional filters.
	Finish(dst []byte) []byte
}

// FilterPolicy implements a filter algorithm (e.g. Bloom filters) that can
// reduce disk reads for Get calls.
//
// One such implementation is bloom.FilterPolicy(10) from the bloom package.
type FilterPolicy interface {
	// Name names the filter policy. Tables do not store the name next to
	// their filter block, and readers do not compare it.
	Name() string

	// MayContain returns whether the encoded filter may contain given key.
	// False positives are possible, where it returns true for keys not in the
	// original set.
	MayContain(filter, key []byte) bool

	// NewWriter creates a new FilterWriter.
	NewWriter() FilterWriter
}
