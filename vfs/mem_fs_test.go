// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package vfs

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors/oserror"
	"github.com/stretchr/testify/require"
)

func TestMemFSBasics(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.MkdirAll("/db/0", 0755))

	f, err := fs.Create("/db/0/000001.sst")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	fi, err := fs.Stat("/db/0/000001.sst")
	require.NoError(t, err)
	require.Equal(t, int64(5), fi.Size())
	require.False(t, fi.IsDir())

	g, err := fs.Open("/db/0/000001.sst")
	require.NoError(t, err)
	b, err := io.ReadAll(g)
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))
	require.NoError(t, g.Close())
}

func TestMemFSReadAt(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("f")
	require.NoError(t, err)
	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	g, err := fs.Open("f")
	require.NoError(t, err)
	defer g.Close()
	buf := make([]byte, 4)
	n, err := g.ReadAt(buf, 3)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "3456", string(buf))

	_, err = g.ReadAt(buf, 8)
	require.ErrorIs(t, err, io.EOF)
}

func TestMemFSList(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.MkdirAll("/db", 0755))
	for _, name := range []string{"c", "a", "b"} {
		f, err := fs.Create("/db/" + name)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	names, err := fs.List("/db")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, names)

	_, err = fs.List("/missing")
	require.True(t, oserror.IsNotExist(err))
}

func TestMemFSRename(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.MkdirAll("/db/lost", 0755))
	f, err := fs.Create("/db/00001.log")
	require.NoError(t, err)
	_, err = f.Write([]byte("wal"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fs.Rename("/db/00001.log", "/db/lost/00001.log"))
	_, err = fs.Stat("/db/00001.log")
	require.True(t, oserror.IsNotExist(err))
	fi, err := fs.Stat("/db/lost/00001.log")
	require.NoError(t, err)
	require.Equal(t, int64(3), fi.Size())

	require.Error(t, fs.Rename("/db/absent", "/db/x"))
}

func TestMemFSRemove(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("f")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, fs.Remove("f"))
	require.Error(t, fs.Remove("f"))
}

func TestMemFSMkdirAllIdempotent(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.MkdirAll("/a/b/c", 0755))
	require.NoError(t, fs.MkdirAll("/a/b/c", 0755))
	names, err := fs.List("/a/b")
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, names)
}
