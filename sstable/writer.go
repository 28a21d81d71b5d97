// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sstable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/groupkv/groupkv/internal/base"
	"github.com/groupkv/groupkv/vfs"
)

// WriterOptions hold the parameters for constructing a table.
type WriterOptions struct {
	// BlockSize is the target uncompressed size of a data block. Defaults to
	// 4096 bytes.
	BlockSize int

	// Compression is the per-block codec. Defaults to snappy.
	Compression Compression

	// ChecksumType protects each block. Defaults to crc32c.
	ChecksumType ChecksumType

	// Comparer orders the keys. Defaults to base.DefaultComparer.
	Comparer *base.Comparer

	// FilterPolicy, if non-nil, adds a filter block covering every user key
	// in the table.
	FilterPolicy base.FilterPolicy
}

func (o WriterOptions) ensureDefaults() WriterOptions {
	if o.BlockSize == 0 {
		o.BlockSize = 4096
	}
	if o.Compression == NoCompression {
		// NB: an explicit NoCompression is indistinguishable from the zero
		// value; callers that really want uncompressed blocks get them via
		// the fallback in compressBlock never firing, which is harmless but
		// not expressible. The engine always compresses.
		o.Compression = DefaultCompression
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	return o
}

// Writer builds an immutable sorted table from keys added in ascending
// internal-key order.
type Writer struct {
	f       vfs.File
	opts    WriterOptions
	filter  base.FilterWriter
	offset  uint64
	block   []byte
	index   []indexEntry
	count   uint64
	lastKey base.InternalKey
	err     error

	compressBuf []byte
}

type indexEntry struct {
	lastKey []byte
	handle  BlockHandle
}

// NewWriter constructs a Writer writing to f. Closing the Writer does not
// close f.
func NewWriter(f vfs.File, o WriterOptions) *Writer {
	w := &Writer{
		f:    f,
		opts: o.ensureDefaults(),
	}
	if w.opts.FilterPolicy != nil {
		w.filter = w.opts.FilterPolicy.NewWriter()
	}
	return w
}

// Add appends a key/value pair. Keys must be added in strictly ascending
// order of base.InternalCompare.
func (w *Writer) Add(key base.InternalKey, value []byte) error {
	if w.err != nil {
		return w.err
	}
	if w.count > 0 && base.InternalCompare(w.opts.Comparer.Compare, w.lastKey, key) >= 0 {
		w.err = errors.Mark(
			errors.Newf("groupkv/sstable: keys must be added in order: %s, %s", w.lastKey, key),
			base.ErrInvalidArgument)
		return w.err
	}
	w.lastKey = key.Clone()
	if w.filter != nil {
		w.filter.AddKey(key.UserKey)
	}
	w.block = binary.AppendUvarint(w.block, uint64(key.Size()))
	w.block = binary.AppendUvarint(w.block, uint64(len(value)))
	n := len(w.block)
	w.block = append(w.block, make([]byte, key.Size())...)
	key.Encode(w.block[n:])
	w.block = append(w.block, value...)
	w.count++
	if len(w.block) >= w.opts.BlockSize {
		w.err = w.finishDataBlock()
	}
	return w.err
}

// Count returns the number of entries added so far.
func (w *Writer) Count() uint64 {
	return w.count
}

// EstimatedSize returns the table size were the writer closed now.
func (w *Writer) EstimatedSize() uint64 {
	return w.offset + uint64(len(w.block)) + footerLen
}

func (w *Writer) finishDataBlock() error {
	if len(w.block) == 0 {
		return nil
	}
	handle, err := w.writeBlock(w.block)
	if err != nil {
		return err
	}
	// The index key is the block's last internal key, re-encoded rather than
	// sliced out of the block buffer which is about to be recycled.
	buf := make([]byte, w.lastKey.Size())
	w.lastKey.Encode(buf)
	w.index = append(w.index, indexEntry{lastKey: buf, handle: handle})
	w.block = w.block[:0]
	return nil
}

// writeBlock writes one block with its trailer and returns its handle.
func (w *Writer) writeBlock(b []byte) (BlockHandle, error) {
	codec, payload := compressBlock(w.opts.Compression, b, w.compressBuf)
	if codec != NoCompression {
		w.compressBuf = payload[:0]
	}
	var trailer [blockTrailerLen]byte
	trailer[0] = byte(codec)
	binary.LittleEndian.PutUint32(trailer[1:], blockChecksum(w.opts.ChecksumType, payload, codec))
	handle := BlockHandle{Offset: w.offset, Length: uint64(len(payload))}
	if _, err := w.f.Write(payload); err != nil {
		return BlockHandle{}, err
	}
	if _, err := w.f.Write(trailer[:]); err != nil {
		return BlockHandle{}, err
	}
	w.offset += uint64(len(payload)) + blockTrailerLen
	return handle, nil
}

// Close finishes the table: it flushes the pending data block, writes the
// filter and index blocks and the footer, and syncs the file. It does not
// close the underlying file.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	if err := w.finishDataBlock(); err != nil {
		w.err = err
		return err
	}

	var ftr footer
	ftr.checksum = w.opts.ChecksumType
	if w.filter != nil && w.count > 0 {
		filterBlock := w.filter.Finish(nil)
		handle, err := w.writeBlock(filterBlock)
		if err != nil {
			w.err = err
			return err
		}
		ftr.filter = handle
	}

	var indexBlock []byte
	var handleBuf [blockHandleMaxLen]byte
	for _, ent := range w.index {
		n := EncodeBlockHandle(handleBuf[:], ent.handle)
		indexBlock = binary.AppendUvarint(indexBlock, uint64(len(ent.lastKey)))
		indexBlock = binary.AppendUvarint(indexBlock, uint64(n))
		indexBlock = append(indexBlock, ent.lastKey...)
		indexBlock = append(indexBlock, handleBuf[:n]...)
	}
	handle, err := w.writeBlock(indexBlock)
	if err != nil {
		w.err = err
		return err
	}
	ftr.index = handle

	var buf [footerLen]byte
	ftr.encode(buf[:])
	if _, err := w.f.Write(buf[:]); err != nil {
		w.err = err
		return err
	}
	w.offset += footerLen
	if err := w.f.Sync(); err != nil {
		w.err = err
		return err
	}
	w.err = errors.New("groupkv/sstable: writer is closed")
	return nil
}
