// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package groupkv

import (
	"math/rand"

	"github.com/groupkv/groupkv/batchrepr"
	"github.com/groupkv/groupkv/internal/base"
)

const memTableMaxHeight = 12

// memTable is an in-memory ordered buffer of internal keys, implemented as a
// skiplist. During repair one is created lazily per locality group when the
// first surviving WAL record is routed to that group, flushed to a table when
// the log is exhausted, and discarded.
//
// A memTable is not safe for concurrent use; repair is single-threaded.
type memTable struct {
	cmp   base.Compare
	rng   *rand.Rand
	head  memNode
	count int
	size  uint64
}

type memNode struct {
	// key is an encoded internal key; the node owns its storage.
	key   []byte
	value []byte
	next  [memTableMaxHeight]*memNode
}

func newMemTable(cmp *base.Comparer) *memTable {
	return &memTable{
		cmp: cmp.Compare,
		rng: rand.New(rand.NewSource(0)),
	}
}

// compare orders two encoded internal keys.
func (m *memTable) compare(a, b []byte) int {
	return base.InternalCompare(m.cmp, base.DecodeInternalKey(a), base.DecodeInternalKey(b))
}

// set inserts an entry. Keys are unique: every entry carries its own sequence
// number, and the trailer participates in the ordering.
func (m *memTable) set(key base.InternalKey, value []byte) {
	n := &memNode{
		key:   make([]byte, key.Size()),
		value: append([]byte(nil), value...),
	}
	key.Encode(n.key)

	height := 1
	for height < memTableMaxHeight && m.rng.Intn(4) == 0 {
		height++
	}

	prev := &m.head
	for level := memTableMaxHeight - 1; level >= 0; level-- {
		for prev.next[level] != nil && m.compare(prev.next[level].key, n.key) < 0 {
			prev = prev.next[level]
		}
		if level < height {
			n.next[level] = prev.next[level]
			prev.next[level] = n
		}
	}
	m.count++
	m.size += uint64(len(n.key) + len(n.value))
}

// apply replays an encoded batch into the memtable. The i-th entry of the
// batch is assigned sequence number seqNum+i, matching the numbering the
// write path used when the batch was committed.
func (m *memTable) apply(repr []byte, seqNum base.SeqNum) error {
	r := batchrepr.Read(repr)
	for i := 0; ; i++ {
		kind, _, ukey, value, ok, err := r.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		m.set(base.MakeInternalKey(ukey, seqNum+base.SeqNum(i), kind), value)
	}
}

// empty reports whether the memtable holds no entries.
func (m *memTable) empty() bool {
	return m.count == 0
}

// newIter returns an iterator over the memtable in internal key order.
func (m *memTable) newIter() *memTableIter {
	return &memTableIter{m: m}
}

// memTableIter is a forward-only iterator over a memTable.
type memTableIter struct {
	m *memTable
	n *memNode
}

func (i *memTableIter) First() bool {
	i.n = i.m.head.next[0]
	return i.n != nil
}

func (i *memTableIter) Next() bool {
	if i.n != nil {
		i.n = i.n.next[0]
	}
	return i.n != nil
}

// Key returns the encoded internal key of the current entry.
func (i *memTableIter) Key() []byte {
	return i.n.key
}

// Value returns the value of the current entry.
func (i *memTableIter) Value() []byte {
	return i.n.value
}

func (i *memTableIter) Error() error {
	return nil
}
