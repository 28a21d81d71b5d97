// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sstable

import (
	"encoding/binary"

	"github.com/groupkv/groupkv/cache"
	"github.com/groupkv/groupkv/internal/base"
	"github.com/groupkv/groupkv/vfs"
)

// ReaderOptions hold the parameters needed for reading a table.
type ReaderOptions struct {
	// Comparer must match the comparer the table was written with. Defaults
	// to base.DefaultComparer.
	Comparer *base.Comparer

	// FilterPolicy enables use of the table's filter block, if it has one. The
	// table does not record which policy wrote its filter block, so the reader
	// applies whichever policy it is given; no name check is made.
	FilterPolicy base.FilterPolicy

	// Cache, if non-nil, caches decompressed blocks across readers.
	Cache *cache.Cache

	// CacheID distinguishes this reader's blocks from other users of a shared
	// Cache. See cache.Cache.NewID.
	CacheID uint64

	// FileNum is the table's file number, used to key the block cache.
	FileNum base.FileNum

	// VerifyChecksums determines whether block checksums are validated on
	// read.
	VerifyChecksums bool
}

func (o ReaderOptions) ensureDefaults() ReaderOptions {
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	return o
}

// Reader reads key/value pairs out of a table file.
type Reader struct {
	f      vfs.File
	opts   ReaderOptions
	ftr    footer
	index  []indexEntry
	filter []byte
}

// NewReader opens the table stored in f. size must be the exact size of the
// file. The Reader takes ownership of f and closes it when the Reader is
// closed.
func NewReader(f vfs.File, size uint64, o ReaderOptions) (*Reader, error) {
	r := &Reader{f: f, opts: o.ensureDefaults()}
	if size < footerLen {
		return nil, base.CorruptionErrorf("groupkv/sstable: invalid table (file size is too small)")
	}
	var buf [footerLen]byte
	if _, err := f.ReadAt(buf[:], int64(size)-footerLen); err != nil {
		return nil, err
	}
	ftr, err := decodeFooter(buf[:])
	if err != nil {
		return nil, err
	}
	r.ftr = ftr

	indexBlock, err := r.readBlock(ftr.index)
	if err != nil {
		return nil, err
	}
	if r.index, err = parseIndexBlock(indexBlock); err != nil {
		return nil, err
	}
	if ftr.filter.Length > 0 && r.opts.FilterPolicy != nil {
		if r.filter, err = r.readBlock(ftr.filter); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Close releases the reader and closes the underlying file.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

func parseIndexBlock(b []byte) ([]indexEntry, error) {
	var index []indexEntry
	for len(b) > 0 {
		var key, value []byte
		var ok bool
		if b, key, value, ok = decodeEntry(b); !ok {
			return nil, errCorruptTable
		}
		handle, n := DecodeBlockHandle(value)
		if n == 0 {
			return nil, errCorruptTable
		}
		index = append(index, indexEntry{lastKey: key, handle: handle})
	}
	return index, nil
}

// decodeEntry decodes one (key, value) entry from a block body, returning the
// remainder.
func decodeEntry(b []byte) (rest, key, value []byte, ok bool) {
	klen, n1 := binary.Uvarint(b)
	if n1 <= 0 {
		return nil, nil, nil, false
	}
	vlen, n2 := binary.Uvarint(b[n1:])
	if n2 <= 0 {
		return nil, nil, nil, false
	}
	b = b[n1+n2:]
	if klen+vlen > uint64(len(b)) {
		return nil, nil, nil, false
	}
	return b[klen+vlen:], b[:klen], b[klen : klen+vlen], true
}

// readBlock reads, verifies and decompresses the block at the given handle,
// consulting the block cache when one is configured.
func (r *Reader) readBlock(h BlockHandle) ([]byte, error) {
	if r.opts.Cache != nil {
		k := cache.Key{ID: r.opts.CacheID, FileNum: r.opts.FileNum, Offset: h.Offset}
		if b := r.opts.Cache.Get(k); b != nil {
			return b, nil
		}
	}
	raw := make([]byte, h.Length+blockTrailerLen)
	if _, err := r.f.ReadAt(raw, int64(h.Offset)); err != nil {
		return nil, err
	}
	payload, trailer := raw[:h.Length], raw[h.Length:]
	codec := Compression(trailer[0])
	if r.opts.VerifyChecksums {
		want := binary.LittleEndian.Uint32(trailer[1:])
		if got := blockChecksum(r.ftr.checksum, payload, codec); got != want {
			return nil, base.CorruptionErrorf(
				"groupkv/sstable: block checksum mismatch at offset %d", h.Offset)
		}
	}
	b, err := decompressBlock(codec, payload)
	if err != nil {
		return nil, err
	}
	if r.opts.Cache != nil {
		r.opts.Cache.Set(cache.Key{ID: r.opts.CacheID, FileNum: r.opts.FileNum, Offset: h.Offset}, b)
	}
	return b, nil
}

// Get looks up the newest entry for the given user key. It returns
// base.ErrNotFound if the key is absent or its newest entry is a deletion
// tombstone. The filter block, when present, prunes misses without touching
// the data blocks.
func (r *Reader) Get(ukey []byte) ([]byte, error) {
	if r.filter != nil && !r.opts.FilterPolicy.MayContain(r.filter, ukey) {
		return nil, base.ErrNotFound
	}
	cmp := r.opts.Comparer.Compare
	search := base.MakeSearchKey(ukey)
	for _, ent := range r.index {
		if base.InternalCompare(cmp, base.DecodeInternalKey(ent.lastKey), search) < 0 {
			continue
		}
		b, err := r.readBlock(ent.handle)
		if err != nil {
			return nil, err
		}
		for len(b) > 0 {
			var key, value []byte
			var ok bool
			if b, key, value, ok = decodeEntry(b); !ok {
				return nil, errCorruptTable
			}
			ik := base.DecodeInternalKey(key)
			switch c := cmp(ik.UserKey, ukey); {
			case c < 0:
			case c > 0:
				return nil, base.ErrNotFound
			default:
				// Entries for one user key sort newest first.
				if ik.Kind() == base.InternalKeyKindDelete {
					return nil, base.ErrNotFound
				}
				return value, nil
			}
		}
		// The search key may fall in the gap after this block's last key.
	}
	return nil, base.ErrNotFound
}

// NewIter returns an iterator positioned before the first entry of the
// table. The iterator only moves forward; repair only ever scans tables front
// to back.
func (r *Reader) NewIter() *Iterator {
	return &Iterator{r: r}
}

// Iterator iterates over all entries of a table in order. Keys and values
// returned are only valid until the following call to Next.
type Iterator struct {
	r        *Reader
	blockIdx int
	block    []byte
	key      []byte
	value    []byte
	err      error
}

// First positions the iterator at the first entry of the table.
func (i *Iterator) First() bool {
	i.blockIdx = 0
	i.block = nil
	return i.Next()
}

// Next advances to the next entry, returning false at the end of the table
// or on error.
func (i *Iterator) Next() bool {
	if i.err != nil {
		return false
	}
	for len(i.block) == 0 {
		if i.blockIdx >= len(i.r.index) {
			return false
		}
		b, err := i.r.readBlock(i.r.index[i.blockIdx].handle)
		if err != nil {
			i.err = err
			return false
		}
		i.blockIdx++
		i.block = b
	}
	var ok bool
	if i.block, i.key, i.value, ok = decodeEntry(i.block); !ok {
		i.err = errCorruptTable
		return false
	}
	return true
}

// Key returns the encoded internal key of the current entry.
func (i *Iterator) Key() []byte {
	return i.key
}

// Value returns the value of the current entry.
func (i *Iterator) Value() []byte {
	return i.value
}

// Error returns the error that stopped iteration, if any.
func (i *Iterator) Error() error {
	return i.err
}

// Close releases the iterator. It does not close the Reader.
func (i *Iterator) Close() error {
	i.block = nil
	return i.err
}
