// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import (
	"testing"

	"github.com/groupkv/groupkv/vfs"
	"github.com/stretchr/testify/require"
)

func TestParseFilename(t *testing.T) {
	testCases := map[string]bool{
		"000000.log":           true,
		"000000.log.zip":       false,
		"000000..log":          false,
		"1a2b3c.log":           true,
		"000001.sst":           true,
		"0000000000000001.sst": true,
		"CURRENT":              true,
		"CURRaNT":              false,
		"LOCK":                 false,
		"MANIFEST":             false,
		"MANIFEST123456":       false,
		"MANIFEST-":            false,
		"MANIFEST-123456":      true,
		"MANIFEST-abcdef":      false,
		"000001.dbtmp":         true,
		"lost":                 false,
		"summary.txt":          false,
	}
	fs := vfs.NewMem()
	for name, want := range testCases {
		_, _, got := ParseFilename(fs, fs.PathJoin("db", name))
		require.Equalf(t, want, got, "%q", name)
	}
}

func TestParseFilenameComponents(t *testing.T) {
	fs := vfs.NewMem()

	ft, fn, ok := ParseFilename(fs, "0001f.log")
	require.True(t, ok)
	require.Equal(t, FileTypeLog, ft)
	require.Equal(t, FileNum(0x1f), fn)

	ft, fn, ok = ParseFilename(fs, "000123.sst")
	require.True(t, ok)
	require.Equal(t, FileTypeTable, ft)
	require.Equal(t, FileNum(123), fn)

	ft, fn, ok = ParseFilename(fs, "MANIFEST-000004")
	require.True(t, ok)
	require.Equal(t, FileTypeManifest, ft)
	require.Equal(t, FileNum(4), fn)
}

func TestFilenameRoundTrip(t *testing.T) {
	fs := vfs.NewMem()
	for _, ft := range []FileType{
		FileTypeLog,
		FileTypeTable,
		FileTypeManifest,
		FileTypeTemp,
	} {
		for _, fn := range []FileNum{0, 1, 0xab, 100_000} {
			name := MakeFilename(ft, fn)
			gotFT, gotFN, ok := ParseFilename(fs, name)
			require.Truef(t, ok, "%q", name)
			require.Equal(t, ft, gotFT)
			require.Equal(t, fn, gotFN)
		}
	}
}

func TestMakeLGPath(t *testing.T) {
	fs := vfs.NewMem()
	require.Equal(t, "db/0", MakeLGPath(fs, "db", 0))
	require.Equal(t, "db/17", MakeLGPath(fs, "db", 17))
}
