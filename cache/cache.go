// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package cache implements the block cache shared by the table readers of a
// database. Cached values are immutable byte slices (decompressed blocks),
// so the cache hands out the stored slice directly; callers must not mutate
// it.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/groupkv/groupkv/internal/base"
)

// Key identifies a cached block: a cache id, the table's file number and the
// block's offset within the file. File numbers are only unique within one
// locality group, so every user of a shared cache allocates its own id with
// NewID; the id keeps equal file numbers from distinct groups apart.
type Key struct {
	ID      uint64
	FileNum base.FileNum
	Offset  uint64
}

type entry struct {
	key   Key
	value []byte
}

// Cache is a fixed-capacity LRU cache of blocks, keyed by Key and bounded by
// total value bytes. It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	lru      *list.List
	entries  map[Key]*list.Element
	idAlloc  atomic.Uint64
}

// NewID returns a new id to be used as the ID field of keys cached by one
// user of the cache.
func (c *Cache) NewID() uint64 {
	return c.idAlloc.Add(1)
}

// New constructs a Cache holding at most capacity bytes of block data.
func New(capacity int64) *Cache {
	return &Cache{
		capacity: capacity,
		lru:      list.New(),
		entries:  make(map[Key]*list.Element),
	}
}

// Get returns the block cached under k, or nil if none is.
func (c *Cache) Get(k Key) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		return nil
	}
	c.lru.MoveToFront(e)
	return e.Value.(*entry).value
}

// Set caches value under k, evicting least-recently-used blocks as needed to
// stay within capacity. Values larger than the capacity are not cached.
func (c *Cache) Set(k Key, value []byte) {
	if int64(len(value)) > c.capacity {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[k]; ok {
		c.used += int64(len(value)) - int64(len(e.Value.(*entry).value))
		e.Value.(*entry).value = value
		c.lru.MoveToFront(e)
	} else {
		c.entries[k] = c.lru.PushFront(&entry{key: k, value: value})
		c.used += int64(len(value))
	}
	for c.used > c.capacity {
		oldest := c.lru.Back()
		ent := oldest.Value.(*entry)
		c.lru.Remove(oldest)
		delete(c.entries, ent.key)
		c.used -= int64(len(ent.value))
	}
}

// EvictFile drops every block cached for the given file. Called when a table
// is deleted or archived.
func (c *Cache) EvictFile(id uint64, fileNum base.FileNum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if k.ID == id && k.FileNum == fileNum {
			c.used -= int64(len(e.Value.(*entry).value))
			c.lru.Remove(e)
			delete(c.entries, k)
		}
	}
}

// Size returns the number of bytes currently cached.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}
