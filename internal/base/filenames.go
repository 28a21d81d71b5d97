// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/redact"
	"github.com/groupkv/groupkv/vfs"
)

// FileNum is an identifier for a file within a database directory. Table and
// manifest numbers are scoped to a locality group's subdirectory; WAL numbers
// are scoped to the database root.
type FileNum uint64

// String implements fmt.Stringer.
func (fn FileNum) String() string { return fmt.Sprintf("%06d", uint64(fn)) }

// SafeFormat implements redact.SafeFormatter.
func (fn FileNum) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%06d", redact.SafeUint(uint64(fn)))
}

// LGID identifies a locality group. Each locality group is stored as an
// independent sub-LSM under a subdirectory named by the decimal LGID.
type LGID uint32

// String implements fmt.Stringer.
func (id LGID) String() string { return strconv.FormatUint(uint64(id), 10) }

// SafeFormat implements redact.SafeFormatter.
func (id LGID) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeUint(uint64(id)))
}

// FileType enumerates the types of files found in a DB.
type FileType int

// The FileType enumeration.
const (
	FileTypeLog FileType = iota
	FileTypeTable
	FileTypeManifest
	FileTypeCurrent
	FileTypeTemp
)

var fileTypeStrings = [...]string{
	FileTypeLog:      "log",
	FileTypeTable:    "sstable",
	FileTypeManifest: "manifest",
	FileTypeCurrent:  "current",
	FileTypeTemp:     "temp",
}

// String implements fmt.Stringer.
func (ft FileType) String() string {
	if ft < 0 || int(ft) >= len(fileTypeStrings) {
		return "unknown"
	}
	return fileTypeStrings[ft]
}

// SafeFormat implements redact.SafeFormatter.
func (ft FileType) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(ft.String()))
}

// MakeFilename builds a filename from components.
//
// WAL files live under the database root and are named by their number in
// lowercase hex. Table, manifest and temp files live under a locality group's
// subdirectory and use decimal numbers. These conventions are part of the
// on-disk format and must not change.
func MakeFilename(fileType FileType, fn FileNum) string {
	switch fileType {
	case FileTypeLog:
		return fmt.Sprintf("%05x.log", uint64(fn))
	case FileTypeTable:
		return fmt.Sprintf("%s.sst", fn)
	case FileTypeManifest:
		return fmt.Sprintf("MANIFEST-%s", fn)
	case FileTypeCurrent:
		return "CURRENT"
	case FileTypeTemp:
		return fmt.Sprintf("%s.dbtmp", fn)
	}
	panic("unreachable")
}

// MakeFilepath builds a filepath from components.
func MakeFilepath(fs vfs.FS, dirname string, fileType FileType, fn FileNum) string {
	return fs.PathJoin(dirname, MakeFilename(fileType, fn))
}

// MakeLGPath returns the path of a locality group's subdirectory.
func MakeLGPath(fs vfs.FS, dirname string, lg LGID) string {
	return fs.PathJoin(dirname, lg.String())
}

// ParseFilename parses the components from a filename. Names that match no
// known convention return ok=false; discovery deliberately ignores them so
// that stale or foreign artifacts in a database directory do not fail a
// repair.
func ParseFilename(fs vfs.FS, filename string) (fileType FileType, fn FileNum, ok bool) {
	filename = fs.PathBase(filename)
	switch {
	case filename == "CURRENT":
		return FileTypeCurrent, 0, true
	case strings.HasPrefix(filename, "MANIFEST-"):
		fn, ok = parseFileNum(filename[len("MANIFEST-"):], 10)
		if !ok {
			break
		}
		return FileTypeManifest, fn, true
	default:
		i := strings.IndexByte(filename, '.')
		if i < 0 {
			break
		}
		switch filename[i+1:] {
		case "log":
			fn, ok = parseFileNum(filename[:i], 16)
			if !ok {
				break
			}
			return FileTypeLog, fn, true
		case "sst":
			fn, ok = parseFileNum(filename[:i], 10)
			if !ok {
				break
			}
			return FileTypeTable, fn, true
		case "dbtmp":
			fn, ok = parseFileNum(filename[:i], 10)
			if !ok {
				break
			}
			return FileTypeTemp, fn, true
		}
	}
	return 0, fn, false
}

func parseFileNum(s string, radix int) (fn FileNum, ok bool) {
	if s == "" {
		return fn, false
	}
	u, err := strconv.ParseUint(s, radix, 64)
	if err != nil {
		return fn, false
	}
	return FileNum(u), true
}
