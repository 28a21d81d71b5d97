// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternalKeyEncodeDecode(t *testing.T) {
	keys := []InternalKey{
		MakeInternalKey(nil, 0, InternalKeyKindDelete),
		MakeInternalKey([]byte("hello"), 1, InternalKeyKindSet),
		MakeInternalKey([]byte("world"), SeqNumMax, InternalKeyKindSet),
	}
	for _, k := range keys {
		buf := make([]byte, k.Size())
		k.Encode(buf)
		got := DecodeInternalKey(buf)
		require.True(t, bytes.Equal(k.UserKey, got.UserKey))
		require.Equal(t, k.Trailer, got.Trailer)
	}
}

func TestParseInternalKey(t *testing.T) {
	good := MakeInternalKey([]byte("a"), 7, InternalKeyKindSet)
	buf := make([]byte, good.Size())
	good.Encode(buf)
	ik, ok := ParseInternalKey(buf)
	require.True(t, ok)
	require.Equal(t, SeqNum(7), ik.SeqNum())
	require.Equal(t, InternalKeyKindSet, ik.Kind())

	// Too short to hold a trailer.
	_, ok = ParseInternalKey([]byte("short"))
	require.False(t, ok)

	// Unrecognized kind byte.
	bad := MakeInternalKey([]byte("a"), 7, InternalKeyKind(250))
	buf = make([]byte, bad.Size())
	bad.Encode(buf)
	_, ok = ParseInternalKey(buf)
	require.False(t, ok)
}

func TestInternalKeyCompare(t *testing.T) {
	cmp := DefaultComparer.Compare
	// User keys ascending; ties broken by sequence number descending, then
	// kind descending.
	ordered := []InternalKey{
		MakeInternalKey([]byte("a"), 9, InternalKeyKindSet),
		MakeInternalKey([]byte("a"), 2, InternalKeyKindSet),
		MakeInternalKey([]byte("a"), 2, InternalKeyKindDelete),
		MakeInternalKey([]byte("b"), 1, InternalKeyKindDelete),
		MakeInternalKey([]byte("b"), 0, InternalKeyKindSet),
	}
	for i := range ordered {
		for j := range ordered {
			got := InternalCompare(cmp, ordered[i], ordered[j])
			switch {
			case i < j:
				require.Negativef(t, got, "%s vs %s", ordered[i], ordered[j])
			case i > j:
				require.Positivef(t, got, "%s vs %s", ordered[i], ordered[j])
			default:
				require.Zero(t, got)
			}
		}
	}
}

func TestMakeSearchKey(t *testing.T) {
	cmp := DefaultComparer.Compare
	search := MakeSearchKey([]byte("k"))
	newest := MakeInternalKey([]byte("k"), SeqNumMax-1, InternalKeyKindSet)
	require.Negative(t, InternalCompare(cmp, search, newest))
}
