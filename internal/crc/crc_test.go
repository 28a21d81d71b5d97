// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package crc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateMatchesNew(t *testing.T) {
	a := []byte("hello ")
	b := []byte("world")
	require.Equal(t, New(append(append([]byte(nil), a...), b...)), New(a).Update(b))
}

func TestValueMasks(t *testing.T) {
	// The masked value must differ from the raw CRC so that data containing
	// embedded checksums doesn't checksum to itself.
	c := New([]byte("groupkv"))
	require.NotEqual(t, uint32(c), c.Value())
}

func TestDistinctInputs(t *testing.T) {
	require.NotEqual(t, New([]byte("a")).Value(), New([]byte("b")).Value())
	require.NotEqual(t, New(nil).Value(), New([]byte{0}).Value())
}
