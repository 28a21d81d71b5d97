// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package batchrepr provides interfaces for reading and writing the binary
// write-batch representation. This batch representation is used in-memory
// while constructing a batch and on-disk within the write-ahead log.
//
// The format is a 12-byte header followed by the batch's entries:
//
//	+---------------+------------+--- ... ---+
//	| SeqNum (8B)   | Count (4B) | Entries   |
//	+---------------+------------+--- ... ---+
//
// Each entry is a 1-byte kind, a uvarint locality group tag, a varint-length
// user key and, for kinds that carry one, a varint-length value. The locality
// group tag is what allows a single WAL stream to be fanned out across the
// per-group sub-LSMs during both the normal apply path and repair.
package batchrepr

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/groupkv/groupkv/internal/base"
)

// ErrInvalidBatch indicates that a batch is invalid or otherwise corrupted.
var ErrInvalidBatch = base.MarkCorruptionError(errors.New("groupkv: invalid batch"))

const (
	// HeaderLen is the length of the batch header in bytes.
	HeaderLen = 12
	// countOffset is the index into the batch representation where the count
	// is stored, encoded as a little-endian uint32.
	countOffset = 8
)

// Header describes the contents of a batch header.
type Header struct {
	// SeqNum is the sequence number at which the batch was committed.
	SeqNum base.SeqNum
	// Count is the count of keys written to the batch.
	Count uint32
}

// ReadHeader reads the contents of the batch header. If the repr is too small
// to contain a valid batch header, ReadHeader returns ok=false.
func ReadHeader(repr []byte) (h Header, ok bool) {
	if len(repr) < HeaderLen {
		return h, false
	}
	return Header{
		SeqNum: ReadSeqNum(repr),
		Count:  binary.LittleEndian.Uint32(repr[countOffset:HeaderLen]),
	}, true
}

// ReadSeqNum reads the sequence number encoded within the batch. ReadSeqNum
// does not validate that the repr is valid.
func ReadSeqNum(repr []byte) base.SeqNum {
	return base.SeqNum(binary.LittleEndian.Uint64(repr[:countOffset]))
}

// SetSeqNum overwrites the sequence number in the header.
func SetSeqNum(repr []byte, seqNum base.SeqNum) {
	binary.LittleEndian.PutUint64(repr[:countOffset], uint64(seqNum))
}

// SetCount overwrites the entry count in the header.
func SetCount(repr []byte, count uint32) {
	binary.LittleEndian.PutUint32(repr[countOffset:HeaderLen], count)
}

// IsEmpty returns true iff the batch contains zero entries.
func IsEmpty(repr []byte) bool {
	return len(repr) <= HeaderLen
}

// Read constructs a Reader from an encoded batch representation, ignoring the
// contents of the Header.
func Read(repr []byte) (r Reader) {
	if len(repr) <= HeaderLen {
		return nil
	}
	return repr[HeaderLen:]
}

// Reader iterates over the entries contained in a batch.
type Reader []byte

// Next returns the next entry in this batch, if there is one. If the reader
// has reached the end of the batch, Next returns ok=false and a nil error. If
// the batch is corrupt and the next entry is illegible, Next returns ok=false
// and a non-nil error.
func (r *Reader) Next() (kind base.InternalKeyKind, lg base.LGID, ukey []byte, value []byte, ok bool, err error) {
	if len(*r) == 0 {
		return 0, 0, nil, nil, false, nil
	}
	kind = base.InternalKeyKind((*r)[0])
	if kind > base.InternalKeyKindMax {
		return 0, 0, nil, nil, false, errors.Wrapf(ErrInvalidBatch, "invalid key kind 0x%x", (*r)[0])
	}
	v, n := binary.Uvarint((*r)[1:])
	if n <= 0 || v > 1<<32-1 {
		return 0, 0, nil, nil, false, errors.Wrapf(ErrInvalidBatch, "decoding locality group tag")
	}
	lg = base.LGID(v)
	*r = (*r)[1+n:]
	*r, ukey, ok = DecodeStr(*r)
	if !ok {
		return 0, 0, nil, nil, false, errors.Wrapf(ErrInvalidBatch, "decoding user key")
	}
	if kind == base.InternalKeyKindSet {
		*r, value, ok = DecodeStr(*r)
		if !ok {
			return 0, 0, nil, nil, false, errors.Wrapf(ErrInvalidBatch, "decoding %s value", kind)
		}
	}
	return kind, lg, ukey, value, true, nil
}

// DecodeStr decodes a varint encoded string from data, returning the
// remainder of data and the decoded string. It returns ok=false if the varint
// is invalid or the data is too short.
func DecodeStr(data []byte) (odata []byte, s []byte, ok bool) {
	v, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, nil, false
	}
	data = data[n:]
	if v > uint64(len(data)) {
		return nil, nil, false
	}
	return data[v:], data[:v], true
}

// Writer builds an encoded batch representation.
type Writer struct {
	repr  []byte
	count uint32
}

// NewWriter returns a Writer with an empty header. The sequence number and
// count are filled in by Repr.
func NewWriter() *Writer {
	return &Writer{repr: make([]byte, HeaderLen)}
}

// Set appends a set entry for the given locality group.
func (w *Writer) Set(lg base.LGID, key, value []byte) {
	w.appendEntry(base.InternalKeyKindSet, lg, key, value)
}

// Delete appends a deletion tombstone for the given locality group.
func (w *Writer) Delete(lg base.LGID, key []byte) {
	w.appendEntry(base.InternalKeyKindDelete, lg, key, nil)
}

func (w *Writer) appendEntry(kind base.InternalKeyKind, lg base.LGID, key, value []byte) {
	w.repr = append(w.repr, byte(kind))
	w.repr = binary.AppendUvarint(w.repr, uint64(lg))
	w.repr = binary.AppendUvarint(w.repr, uint64(len(key)))
	w.repr = append(w.repr, key...)
	if kind == base.InternalKeyKindSet {
		w.repr = binary.AppendUvarint(w.repr, uint64(len(value)))
		w.repr = append(w.repr, value...)
	}
	w.count++
}

// Count returns the number of entries appended so far.
func (w *Writer) Count() uint32 {
	return w.count
}

// Repr stamps the header with the given sequence number and the accumulated
// count and returns the encoded batch.
func (w *Writer) Repr(seqNum base.SeqNum) []byte {
	SetSeqNum(w.repr, seqNum)
	SetCount(w.repr, w.count)
	return w.repr
}

// SeparateLocalityGroups splits a parent batch into one sub-batch per
// locality group present in the parent, keyed by LGID. Every sub-batch is
// stamped with the parent's sequence number — the groups share a single
// sequence-number space — and with its own entry count.
//
// Entries tagged with a group absent from lgs are an error: the batch was
// written by a database with a different locality-group set.
func SeparateLocalityGroups(repr []byte, lgs []base.LGID) (map[base.LGID][]byte, error) {
	h, ok := ReadHeader(repr)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidBatch, "batch shorter than header")
	}
	known := make(map[base.LGID]bool, len(lgs))
	for _, lg := range lgs {
		known[lg] = true
	}
	writers := make(map[base.LGID]*Writer)
	r := Read(repr)
	for {
		kind, lg, ukey, value, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if !known[lg] {
			return nil, errors.Wrapf(ErrInvalidBatch, "entry tagged with unknown locality group %d", lg)
		}
		w := writers[lg]
		if w == nil {
			w = NewWriter()
			writers[lg] = w
		}
		w.appendEntry(kind, lg, ukey, value)
	}
	split := make(map[base.LGID][]byte, len(writers))
	for lg, w := range writers {
		split[lg] = w.Repr(h.SeqNum)
	}
	return split, nil
}
