// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package groupkv

import (
	"testing"

	"github.com/groupkv/groupkv/batchrepr"
	"github.com/groupkv/groupkv/internal/base"
	"github.com/stretchr/testify/require"
)

func TestMemTableOrdering(t *testing.T) {
	m := newMemTable(base.DefaultComparer)
	m.set(base.MakeInternalKey([]byte("b"), 2, base.InternalKeyKindSet), []byte("v2"))
	m.set(base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet), []byte("v1"))
	m.set(base.MakeInternalKey([]byte("b"), 5, base.InternalKeyKindDelete), nil)
	m.set(base.MakeInternalKey([]byte("c"), 3, base.InternalKeyKindSet), []byte("v3"))

	var got []string
	it := m.newIter()
	for ok := it.First(); ok; ok = it.Next() {
		ik := base.DecodeInternalKey(it.Key())
		got = append(got, ik.String())
	}
	// User keys ascending; within a user key, newer sequence numbers first.
	require.Equal(t, []string{
		"a#1,SET",
		"b#5,DEL",
		"b#2,SET",
		"c#3,SET",
	}, got)
}

func TestMemTableApply(t *testing.T) {
	w := batchrepr.NewWriter()
	w.Set(0, []byte("x"), []byte("1"))
	w.Delete(0, []byte("y"))
	w.Set(0, []byte("z"), []byte("3"))
	repr := w.Repr(10)

	m := newMemTable(base.DefaultComparer)
	require.NoError(t, m.apply(repr, 10))
	require.False(t, m.empty())
	require.Equal(t, 3, m.count)

	var got []string
	it := m.newIter()
	for ok := it.First(); ok; ok = it.Next() {
		ik := base.DecodeInternalKey(it.Key())
		got = append(got, ik.String())
	}
	// The i-th entry of the batch is assigned sequence 10+i.
	require.Equal(t, []string{
		"x#10,SET",
		"y#11,DEL",
		"z#12,SET",
	}, got)
}

func TestMemTableApplyCorruptBatch(t *testing.T) {
	w := batchrepr.NewWriter()
	w.Set(0, []byte("x"), []byte("1"))
	repr := w.Repr(10)

	m := newMemTable(base.DefaultComparer)
	require.Error(t, m.apply(repr[:len(repr)-1], 10))
}

func TestMemTableManyKeys(t *testing.T) {
	m := newMemTable(base.DefaultComparer)
	const n = 1000
	for i := 0; i < n; i++ {
		// Insert in a scrambled order.
		k := []byte{byte(i * 7 % 256), byte(i / 256)}
		m.set(base.MakeInternalKey(k, base.SeqNum(i+1), base.InternalKeyKindSet), nil)
	}
	require.Equal(t, n, m.count)

	it := m.newIter()
	var prev []byte
	count := 0
	for ok := it.First(); ok; ok = it.Next() {
		count++
		key := append([]byte(nil), it.Key()...)
		if prev != nil {
			require.Negative(t, m.compare(prev, key))
		}
		prev = key
	}
	require.Equal(t, n, count)
}
