// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package sstable implements readers and writers of groupkv tables.
//
// A table is a sequence of data blocks holding sorted key/value pairs,
// followed by an optional filter block, an index block and a fixed-size
// footer:
//
//	<data block 0>
//	...
//	<data block N>
//	[filter block]
//	<index block>
//	<footer>
//
// Each block is stored compressed and is followed by a 5-byte trailer: a
// 1-byte compression codec and a 4-byte checksum of the compressed payload
// and the codec byte. Within a data block, entries are packed as
//
//	uvarint(key length) uvarint(value length) key value
//
// where the key is an encoded internal key. The index block uses the same
// entry encoding; its keys are the last internal key of each data block and
// its values are encoded block handles. The filter block, if present, holds
// the output of the configured filter policy over every user key in the
// table.
package sstable

import (
	"encoding/binary"

	"github.com/groupkv/groupkv/internal/base"
)

// Compression is the per-block compression codec used when writing a table.
type Compression byte

// The available compression codecs. The values are part of the file format.
const (
	NoCompression     Compression = 0
	SnappyCompression Compression = 1
	ZstdCompression   Compression = 2

	// DefaultCompression is used when the writer options leave the codec
	// unspecified.
	DefaultCompression = SnappyCompression
)

// String implements fmt.Stringer.
func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case SnappyCompression:
		return "snappy"
	case ZstdCompression:
		return "zstd"
	default:
		return "unknown"
	}
}

// ChecksumType selects the checksum algorithm protecting each block.
type ChecksumType byte

// The available checksum types. The values are part of the file format.
const (
	ChecksumCRC32c   ChecksumType = 0
	ChecksumXXHash64 ChecksumType = 1
)

// String implements fmt.Stringer.
func (t ChecksumType) String() string {
	switch t {
	case ChecksumCRC32c:
		return "crc32c"
	case ChecksumXXHash64:
		return "xxhash64"
	default:
		return "unknown"
	}
}

// BlockHandle is the file offset and length of a block, excluding the
// trailer.
type BlockHandle struct {
	Offset, Length uint64
}

// EncodeBlockHandle encodes the handle into buf and returns the number of
// bytes encoded. buf must be at least blockHandleMaxLen bytes.
func EncodeBlockHandle(buf []byte, h BlockHandle) int {
	n := binary.PutUvarint(buf, h.Offset)
	n += binary.PutUvarint(buf[n:], h.Length)
	return n
}

// DecodeBlockHandle decodes a handle from buf, returning it and the number of
// bytes decoded, or n == 0 on failure.
func DecodeBlockHandle(buf []byte) (h BlockHandle, n int) {
	offset, n1 := binary.Uvarint(buf)
	length, n2 := binary.Uvarint(buf[n1:])
	if n1 <= 0 || n2 <= 0 {
		return BlockHandle{}, 0
	}
	return BlockHandle{Offset: offset, Length: length}, n1 + n2
}

const (
	blockTrailerLen    = 5
	blockHandleMaxLen  = 2 * binary.MaxVarintLen64
	footerLen          = 48
	magicOffset        = footerLen - len(tableMagic)
	checksumTypeOffset = 32

	// tableMagic identifies a groupkv table file. The bytes were picked at
	// random when the format was frozen; they are part of the format.
	tableMagic = "\xb5\x01\xcd\x37\x85\xf1\x4e\x9a"
)

var errCorruptTable = base.CorruptionErrorf("groupkv/sstable: corrupt table")

// footer holds the block handles that bootstrap reading a table.
//
// The footer layout is fixed at 48 bytes:
//
//	offset 0:  filter block offset (8 bytes, little endian)
//	offset 8:  filter block length (8 bytes, little endian)
//	offset 16: index block offset (8 bytes, little endian)
//	offset 24: index block length (8 bytes, little endian)
//	offset 32: checksum type (1 byte)
//	offset 33: padding (7 bytes, zero)
//	offset 40: magic (8 bytes)
//
// A zero-length filter handle means the table carries no filter block.
type footer struct {
	filter   BlockHandle
	index    BlockHandle
	checksum ChecksumType
}

func (f footer) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], f.filter.Offset)
	binary.LittleEndian.PutUint64(buf[8:16], f.filter.Length)
	binary.LittleEndian.PutUint64(buf[16:24], f.index.Offset)
	binary.LittleEndian.PutUint64(buf[24:32], f.index.Length)
	buf[checksumTypeOffset] = byte(f.checksum)
	clear(buf[checksumTypeOffset+1 : magicOffset])
	copy(buf[magicOffset:], tableMagic)
}

func decodeFooter(buf []byte) (footer, error) {
	var f footer
	if len(buf) != footerLen || string(buf[magicOffset:]) != tableMagic {
		return f, errCorruptTable
	}
	f.filter.Offset = binary.LittleEndian.Uint64(buf[0:8])
	f.filter.Length = binary.LittleEndian.Uint64(buf[8:16])
	f.index.Offset = binary.LittleEndian.Uint64(buf[16:24])
	f.index.Length = binary.LittleEndian.Uint64(buf[24:32])
	f.checksum = ChecksumType(buf[checksumTypeOffset])
	return f, nil
}
