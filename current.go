// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package groupkv

import (
	"bytes"
	"io"
	"strings"

	"github.com/groupkv/groupkv/internal/base"
	"github.com/groupkv/groupkv/vfs"
)

// setCurrentFile points CURRENT at the manifest with the given file number.
// The pointer is written to a temp file first and renamed into place, so an
// observer sees either the old pointer or the new one, never a torn write.
// This rename is the atomic commit point of a descriptor install.
func setCurrentFile(fs vfs.FS, dirname string, fileNum base.FileNum) error {
	newManifest := base.MakeFilename(base.FileTypeManifest, fileNum)
	tmp := base.MakeFilepath(fs, dirname, base.FileTypeTemp, fileNum)
	f, err := fs.Create(tmp)
	if err != nil {
		return err
	}
	_, err = f.Write([]byte(newManifest + "\n"))
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	if err := fs.Rename(tmp, fs.PathJoin(dirname, "CURRENT")); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return nil
}

// readCurrentFile returns the basename of the manifest CURRENT points at.
func readCurrentFile(fs vfs.FS, dirname string) (string, error) {
	f, err := fs.Open(fs.PathJoin(dirname, "CURRENT"))
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	s := strings.TrimSuffix(string(b), "\n")
	if len(s) == len(b) || bytes.ContainsAny(b, "\x00") || s == "" {
		return "", base.CorruptionErrorf("groupkv: CURRENT file is malformed")
	}
	return s, nil
}
