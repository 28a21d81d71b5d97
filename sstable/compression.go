// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sstable

import (
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/groupkv/groupkv/internal/base"
	"github.com/groupkv/groupkv/internal/crc"
	"github.com/klauspost/compress/zstd"
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

// compressBlock compresses b according to codec, appending to dst. It may
// fall back to NoCompression when the codec does not shrink the block; the
// codec actually used is returned and recorded in the block trailer.
func compressBlock(codec Compression, b, dst []byte) (Compression, []byte) {
	switch codec {
	case SnappyCompression:
		compressed := snappy.Encode(dst, b)
		if len(compressed) < len(b) {
			return SnappyCompression, compressed
		}
	case ZstdCompression:
		compressed := zstdEncoder.EncodeAll(b, dst[:0])
		if len(compressed) < len(b) {
			return ZstdCompression, compressed
		}
	}
	return NoCompression, b
}

// decompressBlock reverses compressBlock given the codec byte stored in the
// block trailer.
func decompressBlock(codec Compression, b []byte) ([]byte, error) {
	switch codec {
	case NoCompression:
		return b, nil
	case SnappyCompression:
		decompressed, err := snappy.Decode(nil, b)
		if err != nil {
			return nil, base.MarkCorruptionError(err)
		}
		return decompressed, nil
	case ZstdCompression:
		decompressed, err := zstdDecoder.DecodeAll(b, nil)
		if err != nil {
			return nil, base.MarkCorruptionError(err)
		}
		return decompressed, nil
	default:
		return nil, base.CorruptionErrorf("groupkv/sstable: unknown block codec %d", errors.Safe(byte(codec)))
	}
}

// blockChecksum computes the configured checksum over the stored block
// payload and its codec byte.
func blockChecksum(t ChecksumType, b []byte, codec Compression) uint32 {
	switch t {
	case ChecksumXXHash64:
		d := xxhash.New()
		_, _ = d.Write(b)
		_, _ = d.Write([]byte{byte(codec)})
		return uint32(d.Sum64())
	default:
		return crc.New(b).Update([]byte{byte(codec)}).Value()
	}
}
