// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package groupkv

import (
	"github.com/groupkv/groupkv/internal/base"
	"github.com/groupkv/groupkv/internal/manifest"
	"github.com/groupkv/groupkv/sstable"
	"github.com/groupkv/groupkv/vfs"
)

// internalIterator is the iterator shape buildTable consumes: a forward walk
// over encoded internal keys. Both memtable and sstable iterators satisfy it.
type internalIterator interface {
	First() bool
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
}

// buildTable writes the contents of iter to a new table file named by
// meta.FileNum, syncs it, and fills in meta's size and bounds. An empty
// iterator builds nothing and leaves meta.Size zero. On success the freshly
// written table is opened through the table cache as a verification read, the
// same check the engine's flush path performs.
func buildTable(
	fs vfs.FS,
	dirname string,
	opts *Options,
	tc *TableCache,
	ro sstable.ReaderOptions,
	iter internalIterator,
	meta *manifest.FileMetadata,
) (err error) {
	if !iter.First() {
		return iter.Error()
	}
	fname := base.MakeFilepath(fs, dirname, base.FileTypeTable, meta.FileNum)
	f, err := fs.Create(fname)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = fs.Remove(fname)
			meta.Size = 0
		}
	}()

	w := sstable.NewWriter(f, sstable.WriterOptions{
		Comparer:     opts.Comparer,
		FilterPolicy: opts.FilterPolicy,
	})
	first := true
	for ok := true; ok; ok = iter.Next() {
		key := base.DecodeInternalKey(iter.Key())
		if addErr := w.Add(key, iter.Value()); addErr != nil {
			err = addErr
			_ = f.Close()
			return err
		}
		if first {
			first = false
			meta.Smallest = key.Clone()
		}
		meta.Largest = key.Clone()
	}
	if iterErr := iter.Error(); iterErr != nil {
		err = iterErr
		_ = f.Close()
		return err
	}
	if err = w.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}

	fi, err := fs.Stat(fname)
	if err != nil {
		return err
	}
	meta.Size = uint64(fi.Size())

	// Verification read: make sure the table we just built can be opened and
	// iterated through the same path a later scan will use.
	it, err := tc.newIter(fs, dirname, meta.FileNum, meta.Size, ro)
	if err != nil {
		tc.Evict(dirname, meta.FileNum)
		return err
	}
	for ok := it.First(); ok; ok = it.Next() {
	}
	err = it.Close()
	if err != nil {
		tc.Evict(dirname, meta.FileNum)
	}
	return err
}
