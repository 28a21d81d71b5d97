// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package bloom implements Bloom filters.
package bloom

import (
	"fmt"

	"github.com/groupkv/groupkv/internal/base"
)

// hash implements a hashing algorithm similar to the Murmur hash. The
// algorithm is part of the filter block format and must not change.
func hash(b []byte) uint32 {
	const (
		seed = 0xbc9f1d34
		m    = 0xc6a4a793
	)
	h := uint32(seed) ^ (uint32(len(b)) * m)
	for ; len(b) >= 4; b = b[4:] {
		h += uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		h *= m
		h ^= h >> 16
	}
	// The remaining bytes are sign-extended before mixing, matching the
	// original implementation's behavior with signed chars.
	switch len(b) {
	case 3:
		h += uint32(int8(b[2])) << 16
		fallthrough
	case 2:
		h += uint32(int8(b[1])) << 8
		fallthrough
	case 1:
		h += uint32(int8(b[0]))
		h *= m
		h ^= h >> 24
	}
	return h
}

// FilterPolicy implements base.FilterPolicy with a Bloom filter. The integer
// value is the approximate number of bits used per key: a good value is 10,
// which yields a filter with ~1% false positive rate.
type FilterPolicy int

var _ base.FilterPolicy = FilterPolicy(0)

// Name implements the base.FilterPolicy interface.
func (p FilterPolicy) Name() string {
	// This string looks arbitrary, but its value is written to LevelDB .sst
	// files, and should be this exact value to be compatible with those files
	// and with the C++ LevelDB code.
	return "leveldb.BuiltinBloomFilter2"
}

// MayContain implements the base.FilterPolicy interface.
func (p FilterPolicy) MayContain(filter, key []byte) bool {
	if len(filter) < 2 {
		return false
	}
	k := filter[len(filter)-1]
	if k > 30 {
		// Reserved for potentially new encodings. Consider it a match.
		return true
	}
	nBits := uint32(8 * (len(filter) - 1))
	h := hash(key)
	delta := h>>17 | h<<15
	for j := uint8(0); j < k; j++ {
		bitPos := h % nBits
		if filter[bitPos/8]&(1<<(bitPos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

// NewWriter implements the base.FilterPolicy interface.
func (p FilterPolicy) NewWriter() base.FilterWriter {
	return &filterWriter{
		bitsPerKey: int(p),
	}
}

type filterWriter struct {
	bitsPerKey int
	hashes     []uint32
}

var _ base.FilterWriter = (*filterWriter)(nil)

// AddKey implements the base.FilterWriter interface.
func (w *filterWriter) AddKey(key []byte) {
	w.hashes = append(w.hashes, hash(key))
}

// Finish implements the base.FilterWriter interface.
func (w *filterWriter) Finish(dst []byte) []byte {
	// We intentionally round down to reduce probing cost a little bit.
	k := uint8(float64(w.bitsPerKey) * 0.69) // 0.69 =~ ln(2)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	nBits := len(w.hashes) * w.bitsPerKey
	// For small len(keys), we can see a very high false positive rate. Fix it
	// by enforcing a minimum bloom filter length.
	if nBits < 64 {
		nBits = 64
	}
	nBytes := (nBits + 7) / 8
	nBits = nBytes * 8
	off := len(dst)
	dst = append(dst, make([]byte, nBytes+1)...)
	filter := dst[off:]
	for _, h := range w.hashes {
		delta := h>>17 | h<<15
		for j := uint8(0); j < k; j++ {
			bitPos := h % uint32(nBits)
			filter[bitPos/8] |= 1 << (bitPos % 8)
			h += delta
		}
	}
	filter[nBytes] = k
	w.hashes = w.hashes[:0]
	return dst
}

// String implements fmt.Stringer.
func (p FilterPolicy) String() string {
	return fmt.Sprintf("bloom(%d)", int(p))
}
