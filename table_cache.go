// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package groupkv

import (
	"container/list"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/groupkv/groupkv/internal/base"
	"github.com/groupkv/groupkv/sstable"
	"github.com/groupkv/groupkv/vfs"
)

// TableCache caches open table readers, keyed by directory and file number.
// Repair opens every table exactly once, so the cache it creates for itself
// is small; a long-lived cache shared with the engine's read path may be
// passed in through Options.TableCache instead.
type TableCache struct {
	mu       sync.Mutex
	capacity int
	lru      *list.List
	entries  map[tableCacheKey]*list.Element
}

type tableCacheKey struct {
	dirname string
	fileNum base.FileNum
}

type tableCacheEntry struct {
	key    tableCacheKey
	reader *sstable.Reader
}

// NewTableCache constructs a TableCache holding at most capacity open
// tables.
func NewTableCache(capacity int) *TableCache {
	return &TableCache{
		capacity: capacity,
		lru:      list.New(),
		entries:  make(map[tableCacheKey]*list.Element),
	}
}

// find returns the cached reader for the given table, opening it if
// necessary.
func (c *TableCache) find(
	fs vfs.FS, dirname string, fileNum base.FileNum, fileSize uint64, ro sstable.ReaderOptions,
) (*sstable.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := tableCacheKey{dirname, fileNum}
	if e, ok := c.entries[key]; ok {
		c.lru.MoveToFront(e)
		return e.Value.(*tableCacheEntry).reader, nil
	}
	fname := base.MakeFilepath(fs, dirname, base.FileTypeTable, fileNum)
	f, err := fs.Open(fname)
	if err != nil {
		return nil, err
	}
	r, err := sstable.NewReader(f, fileSize, ro)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	c.entries[key] = c.lru.PushFront(&tableCacheEntry{key: key, reader: r})
	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		ent := oldest.Value.(*tableCacheEntry)
		c.lru.Remove(oldest)
		delete(c.entries, ent.key)
		_ = ent.reader.Close()
	}
	return r, nil
}

// newIter returns an iterator over the given table.
func (c *TableCache) newIter(
	fs vfs.FS, dirname string, fileNum base.FileNum, fileSize uint64, ro sstable.ReaderOptions,
) (*sstable.Iterator, error) {
	r, err := c.find(fs, dirname, fileNum, fileSize, ro)
	if err != nil {
		return nil, err
	}
	return r.NewIter(), nil
}

// Evict closes and drops the cached reader for the given table, if any.
// Called when a table is archived or deleted.
func (c *TableCache) Evict(dirname string, fileNum base.FileNum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := tableCacheKey{dirname, fileNum}
	if e, ok := c.entries[key]; ok {
		c.lru.Remove(e)
		delete(c.entries, key)
		_ = e.Value.(*tableCacheEntry).reader.Close()
	}
}

// Close closes every cached reader and empties the cache. The cache remains
// usable.
func (c *TableCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	for key, e := range c.entries {
		err = errors.CombineErrors(err, e.Value.(*tableCacheEntry).reader.Close())
		delete(c.entries, key)
	}
	c.lru.Init()
	return err
}
