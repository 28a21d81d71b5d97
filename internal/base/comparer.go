// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import "bytes"

// Compare returns -1, 0, or +1 depending on whether a is 'less than', 'equal
// to' or 'greater than' b. An empty slice must be 'less than' any non-empty
// slice.
type Compare func(a, b []byte) int

// Equal returns true if a and b are equivalent. For a given Compare,
// Equal(a,b) must return true iff Compare(a,b) returns zero, but may be a
// faster specialization.
type Equal func(a, b []byte) bool

// Comparer defines a total ordering over the space of []byte keys. The
// comparer's name is written into every descriptor produced by the repairer
// and is verified when the database is reopened.
type Comparer struct {
	Compare Compare
	Equal   Equal

	// Name is the name of the comparer. The on-disk format stores the
	// comparer name, and opening a database with a different comparer from the
	// one it was created with will result in an error.
	Name string
}

// DefaultComparer is the default bytewise comparer. Its name matches the
// LevelDB built-in so that descriptors repaired by this package are readable
// by the rest of the engine.
var DefaultComparer = &Comparer{
	Compare: bytes.Compare,
	Equal:   bytes.Equal,
	Name:    "leveldb.BytewiseComparator",
}
