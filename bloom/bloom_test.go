// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoFalseNegatives(t *testing.T) {
	p := FilterPolicy(10)
	w := p.NewWriter()
	var keys [][]byte
	for i := 0; i < 1000; i++ {
		keys = append(keys, []byte(fmt.Sprintf("key%08d", i)))
	}
	for _, k := range keys {
		w.AddKey(k)
	}
	filter := w.Finish(nil)
	for _, k := range keys {
		require.True(t, p.MayContain(filter, k), "%s", k)
	}
}

func TestFalsePositiveRate(t *testing.T) {
	p := FilterPolicy(10)
	w := p.NewWriter()
	for i := 0; i < 10000; i++ {
		w.AddKey([]byte(fmt.Sprintf("key%08d", i)))
	}
	filter := w.Finish(nil)

	fp := 0
	const probes = 10000
	for i := 0; i < probes; i++ {
		if p.MayContain(filter, []byte(fmt.Sprintf("absent%08d", i))) {
			fp++
		}
	}
	// 10 bits per key gives ~1% false positives; leave generous slack.
	require.Less(t, fp, probes/20)
}

func TestEmptyFilter(t *testing.T) {
	p := FilterPolicy(10)
	require.False(t, p.MayContain(nil, []byte("x")))
	require.False(t, p.MayContain([]byte{}, []byte("x")))
}

func TestSmallKeySet(t *testing.T) {
	p := FilterPolicy(10)
	w := p.NewWriter()
	w.AddKey([]byte("solo"))
	filter := w.Finish(nil)
	require.True(t, p.MayContain(filter, []byte("solo")))
	// The enforced minimum filter size keeps tiny filters useful.
	require.GreaterOrEqual(t, len(filter), 9)
}

func TestWriterReuse(t *testing.T) {
	p := FilterPolicy(10)
	w := p.NewWriter()
	w.AddKey([]byte("a"))
	first := w.Finish(nil)
	require.True(t, p.MayContain(first, []byte("a")))

	// Finish resets the writer.
	w.AddKey([]byte("b"))
	second := w.Finish(nil)
	require.True(t, p.MayContain(second, []byte("b")))
}
