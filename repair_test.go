// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package groupkv

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/groupkv/groupkv/batchrepr"
	"github.com/groupkv/groupkv/internal/base"
	"github.com/groupkv/groupkv/internal/manifest"
	"github.com/groupkv/groupkv/record"
	"github.com/groupkv/groupkv/sstable"
	"github.com/groupkv/groupkv/vfs"
	"github.com/stretchr/testify/require"
)

// testLogger records every log line so tests can assert on the repair's
// corruption and progress reporting.
type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) logf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *testLogger) Infof(format string, args ...interface{})  { l.logf(format, args...) }
func (l *testLogger) Errorf(format string, args ...interface{}) { l.logf(format, args...) }
func (l *testLogger) Fatalf(format string, args ...interface{}) { l.logf(format, args...) }

func (l *testLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

type testKV struct {
	key   base.InternalKey
	value string
}

func ikey(ukey string, seq base.SeqNum, kind base.InternalKeyKind) base.InternalKey {
	return base.MakeInternalKey([]byte(ukey), seq, kind)
}

// writeTestTable writes kvs (which must be in internal key order) to the
// table file named fn under dir.
func writeTestTable(t *testing.T, fs vfs.FS, dir string, fn base.FileNum, kvs []testKV) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(dir, 0755))
	f, err := fs.Create(base.MakeFilepath(fs, dir, base.FileTypeTable, fn))
	require.NoError(t, err)
	w := sstable.NewWriter(f, sstable.WriterOptions{})
	for _, kv := range kvs {
		require.NoError(t, w.Add(kv.key, []byte(kv.value)))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

// writeTestWAL frames recs into the WAL file named fn under the database
// root.
func writeTestWAL(t *testing.T, fs vfs.FS, dbdir string, fn base.FileNum, recs ...[]byte) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(dbdir, 0755))
	f, err := fs.Create(base.MakeFilepath(fs, dbdir, base.FileTypeLog, fn))
	require.NoError(t, err)
	w := record.NewWriter(f)
	for _, rec := range recs {
		require.NoError(t, w.WriteRecord(rec))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

type testMut struct {
	kind  base.InternalKeyKind
	lg    base.LGID
	key   string
	value string
}

func encodeBatch(seq base.SeqNum, muts ...testMut) []byte {
	w := batchrepr.NewWriter()
	for _, m := range muts {
		if m.kind == base.InternalKeyKindSet {
			w.Set(m.lg, []byte(m.key), []byte(m.value))
		} else {
			w.Delete(m.lg, []byte(m.key))
		}
	}
	return w.Repr(seq)
}

// readDescriptor follows CURRENT in dir and decodes the single version edit
// of the descriptor it names.
func readDescriptor(t *testing.T, fs vfs.FS, dir string) manifest.VersionEdit {
	t.Helper()
	rec := readDescriptorBytes(t, fs, dir)
	var ve manifest.VersionEdit
	require.NoError(t, ve.Decode(bytes.NewReader(rec)))
	return ve
}

func readDescriptorBytes(t *testing.T, fs vfs.FS, dir string) []byte {
	t.Helper()
	current, err := readCurrentFile(fs, dir)
	require.NoError(t, err)
	f, err := fs.Open(fs.PathJoin(dir, current))
	require.NoError(t, err)
	defer f.Close()
	r := record.NewReader(f, record.ReaderOptions{VerifyChecksums: true})
	rec, err := r.ReadRecord()
	require.NoError(t, err)
	out := append([]byte(nil), rec...)
	_, err = r.ReadRecord()
	require.ErrorIs(t, err, io.EOF)
	return out
}

// readTestTable returns every parseable entry of a table as a map from the
// internal key's string form to the value.
func readTestTable(t *testing.T, fs vfs.FS, dir string, fn base.FileNum) map[string]string {
	t.Helper()
	fname := base.MakeFilepath(fs, dir, base.FileTypeTable, fn)
	fi, err := fs.Stat(fname)
	require.NoError(t, err)
	f, err := fs.Open(fname)
	require.NoError(t, err)
	r, err := sstable.NewReader(f, uint64(fi.Size()), sstable.ReaderOptions{VerifyChecksums: true})
	require.NoError(t, err)
	defer r.Close()

	entries := make(map[string]string)
	it := r.NewIter()
	for ok := it.First(); ok; ok = it.Next() {
		ik := base.DecodeInternalKey(it.Key())
		entries[ik.String()] = string(it.Value())
	}
	require.NoError(t, it.Error())
	return entries
}

func testOptions(fs vfs.FS, logger *testLogger, lgs ...LGID) *Options {
	return &Options{
		FS:     fs,
		Logger: logger,
		LGList: lgs,
	}
}

// Scenario: single locality group, lost manifest, one surviving table, no
// logs. Repair synthesizes a descriptor from the table alone.
func TestRepairLostManifest(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	lgDir := "db/0"
	writeTestTable(t, fs, lgDir, 1, []testKV{
		{ikey("a", 5, base.InternalKeyKindSet), "1"},
		{ikey("b", 6, base.InternalKeyKindSet), "2"},
	})

	require.NoError(t, Repair("db", testOptions(fs, logger)))

	ve := readDescriptor(t, fs, lgDir)
	require.Equal(t, base.DefaultComparer.Name, ve.ComparerName)
	require.Equal(t, base.FileNum(0), ve.LogNum)
	require.Equal(t, base.FileNum(2), ve.NextFileNum)
	require.Equal(t, base.SeqNum(6), ve.LastSeqNum)
	require.Len(t, ve.NewFiles, 1)
	nf := ve.NewFiles[0]
	require.Equal(t, 0, nf.Level)
	require.Equal(t, base.FileNum(1), nf.Meta.FileNum)
	require.Positive(t, nf.Meta.Size)
	require.Equal(t, "a#5,SET", nf.Meta.Smallest.String())
	require.Equal(t, "b#6,SET", nf.Meta.Largest.String())

	current, err := readCurrentFile(fs, lgDir)
	require.NoError(t, err)
	require.Equal(t, "MANIFEST-000001", current)
}

// Scenario: WAL only. The log is converted to a table and archived.
func TestRepairWALOnly(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	lgDir := "db/0"
	require.NoError(t, fs.MkdirAll(lgDir, 0755))
	writeTestWAL(t, fs, "db", 1,
		encodeBatch(10, testMut{base.InternalKeyKindSet, 0, "k", "v"}))

	require.NoError(t, Repair("db", testOptions(fs, logger)))

	ve := readDescriptor(t, fs, lgDir)
	require.Equal(t, base.SeqNum(10), ve.LastSeqNum)
	require.Equal(t, base.FileNum(2), ve.NextFileNum)
	require.Len(t, ve.NewFiles, 1)
	require.Equal(t, base.FileNum(1), ve.NewFiles[0].Meta.FileNum)

	require.Equal(t, map[string]string{"k#10,SET": "v"},
		readTestTable(t, fs, lgDir, 1))

	// The WAL has been archived under the root's lost/ directory.
	_, err := fs.Stat("db/00001.log")
	require.Error(t, err)
	_, err = fs.Stat("db/lost/00001.log")
	require.NoError(t, err)
}

// Scenario: duplicate record suppression. Records whose sequence range is
// already reflected in a surviving table are dropped.
func TestRepairDuplicateSuppression(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	lgDir := "db/0"
	writeTestTable(t, fs, lgDir, 1, []testKV{
		{ikey("m", 100, base.InternalKeyKindSet), "old"},
	})
	writeTestWAL(t, fs, "db", 5,
		encodeBatch(50,
			testMut{base.InternalKeyKindSet, 0, "p", "1"},
			testMut{base.InternalKeyKindSet, 0, "q", "2"},
			testMut{base.InternalKeyKindSet, 0, "r", "3"}),
		encodeBatch(200, testMut{base.InternalKeyKindSet, 0, "n", "new"}))

	require.NoError(t, Repair("db", testOptions(fs, logger)))
	require.True(t, logger.contains("duplicate record, ignore 50 ~ 52"))

	ve := readDescriptor(t, fs, lgDir)
	require.Equal(t, base.SeqNum(200), ve.LastSeqNum)
	require.Equal(t, base.FileNum(3), ve.NextFileNum)
	require.Len(t, ve.NewFiles, 2)

	// Only the seq=200 mutation was materialized.
	require.Equal(t, map[string]string{"n#200,SET": "new"},
		readTestTable(t, fs, lgDir, 2))
}

// Scenario: corrupt mid-WAL. A runt record between two good ones costs
// exactly itself.
func TestRepairCorruptMidWAL(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	lgDir := "db/0"
	require.NoError(t, fs.MkdirAll(lgDir, 0755))
	writeTestWAL(t, fs, "db", 1,
		encodeBatch(10, testMut{base.InternalKeyKindSet, 0, "a", "1"}),
		[]byte("trunc"), // 5 bytes: smaller than a batch header
		encodeBatch(12, testMut{base.InternalKeyKindSet, 0, "c", "3"}))

	require.NoError(t, Repair("db", testOptions(fs, logger)))
	require.True(t, logger.contains("dropping 5 bytes"))

	ve := readDescriptor(t, fs, lgDir)
	require.Equal(t, base.SeqNum(12), ve.LastSeqNum)
	require.Equal(t, map[string]string{
		"a#10,SET": "1",
		"c#12,SET": "3",
	}, readTestTable(t, fs, lgDir, 1))
}

// Scenario: multi-LG split. A batch spanning two locality groups lands in
// both, with the shared sequence number.
func TestRepairMultiLGSplit(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	require.NoError(t, fs.MkdirAll("db/0", 0755))
	require.NoError(t, fs.MkdirAll("db/1", 0755))
	writeTestWAL(t, fs, "db", 1,
		encodeBatch(20,
			testMut{base.InternalKeyKindSet, 0, "k0", "v0"},
			testMut{base.InternalKeyKindSet, 1, "k1", "v1"}))

	require.NoError(t, Repair("db", testOptions(fs, logger, 0, 1)))

	for lg, want := range map[LGID]map[string]string{
		0: {"k0#20,SET": "v0"},
		1: {"k1#20,SET": "v1"},
	} {
		dir := base.MakeLGPath(fs, "db", lg)
		ve := readDescriptor(t, fs, dir)
		require.Equal(t, base.SeqNum(20), ve.LastSeqNum, "lg %s", lg)
		require.Len(t, ve.NewFiles, 1, "lg %s", lg)
		require.Equal(t, want, readTestTable(t, fs, dir, ve.NewFiles[0].Meta.FileNum))
	}
}

// Scenario: a table with unparsable keys is retained; the garbage keys are
// skipped and contribute nothing to the recovered metadata.
func TestRepairTableWithUnparsableKeys(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	lgDir := "db/0"
	writeTestTable(t, fs, lgDir, 1, []testKV{
		{base.MakeInternalKey(nil, 0, base.InternalKeyKindInvalid), "junk"},
		{ikey("x", 7, base.InternalKeyKindSet), "vx"},
		{ikey("y", 9, base.InternalKeyKindSet), "vy"},
	})

	require.NoError(t, Repair("db", testOptions(fs, logger)))
	require.True(t, logger.contains("unparsable key"))

	ve := readDescriptor(t, fs, lgDir)
	require.Len(t, ve.NewFiles, 1)
	require.Equal(t, "x#7,SET", ve.NewFiles[0].Meta.Smallest.String())
	require.Equal(t, "y#9,SET", ve.NewFiles[0].Meta.Largest.String())
	require.Equal(t, base.SeqNum(9), ve.LastSeqNum)
}

// Boundary: an empty database directory aborts with a not-found error before
// anything is mutated.
func TestRepairEmptyDir(t *testing.T) {
	fs := vfs.NewMem()
	require.NoError(t, fs.MkdirAll("db", 0755))
	err := Repair("db", testOptions(fs, &testLogger{}))
	require.Error(t, err)
	require.True(t, errors.Is(err, base.ErrNotFound))
	names, listErr := fs.List("db")
	require.NoError(t, listErr)
	require.Empty(t, names)
}

// Boundary: a directory holding only unrelated files recovers nothing, but a
// descriptor with an empty file list is still installed.
func TestRepairUnrelatedFilesOnly(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	lgDir := "db/0"
	require.NoError(t, fs.MkdirAll(lgDir, 0755))
	f, err := fs.Create("db/README.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, Repair("db", testOptions(fs, logger)))

	ve := readDescriptor(t, fs, lgDir)
	require.Empty(t, ve.NewFiles)
	require.Equal(t, base.FileNum(1), ve.NextFileNum)
	require.Equal(t, base.SeqNum(0), ve.LastSeqNum)

	// The unrelated file is untouched.
	_, err = fs.Stat("db/README.txt")
	require.NoError(t, err)
}

// Boundary: a table that parses zero keys is archived, not referenced.
func TestRepairEmptyTable(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	lgDir := "db/0"
	writeTestTable(t, fs, lgDir, 3, nil)

	require.NoError(t, Repair("db", testOptions(fs, logger)))
	require.True(t, logger.contains("sst is empty"))

	ve := readDescriptor(t, fs, lgDir)
	require.Empty(t, ve.NewFiles)
	require.Equal(t, base.FileNum(4), ve.NextFileNum)

	_, err := fs.Stat(lgDir + "/000003.sst")
	require.Error(t, err)
	_, err = fs.Stat(lgDir + "/lost/000003.sst")
	require.NoError(t, err)
}

// Boundary: a table that is not a table at all is archived.
func TestRepairGarbageTable(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	lgDir := "db/0"
	require.NoError(t, fs.MkdirAll(lgDir, 0755))
	f, err := fs.Create(lgDir + "/000002.sst")
	require.NoError(t, err)
	_, err = f.Write([]byte("this is not an sstable"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	writeTestTable(t, fs, lgDir, 5, []testKV{
		{ikey("k", 3, base.InternalKeyKindSet), "v"},
	})

	require.NoError(t, Repair("db", testOptions(fs, logger)))

	ve := readDescriptor(t, fs, lgDir)
	require.Len(t, ve.NewFiles, 1)
	require.Equal(t, base.FileNum(5), ve.NewFiles[0].Meta.FileNum)
	require.Equal(t, base.FileNum(6), ve.NextFileNum)

	_, err = fs.Stat(lgDir + "/lost/000002.sst")
	require.NoError(t, err)
}

// Re-running repair over an already repaired database produces a
// byte-identical descriptor and archives the previous one.
func TestRepairIdempotent(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	lgDir := "db/0"
	writeTestTable(t, fs, lgDir, 1, []testKV{
		{ikey("a", 5, base.InternalKeyKindSet), "1"},
	})
	writeTestWAL(t, fs, "db", 1,
		encodeBatch(10, testMut{base.InternalKeyKindSet, 0, "b", "2"}))

	require.NoError(t, Repair("db", testOptions(fs, logger)))
	first := readDescriptorBytes(t, fs, lgDir)

	require.NoError(t, Repair("db", testOptions(fs, logger)))
	second := readDescriptorBytes(t, fs, lgDir)
	require.Equal(t, first, second)

	// The first repair's descriptor was archived by the second.
	_, err := fs.Stat(lgDir + "/lost/MANIFEST-000001")
	require.NoError(t, err)
}

// The original manifests are archived when the repair installs a new
// descriptor.
func TestRepairArchivesOldManifests(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	lgDir := "db/0"
	writeTestTable(t, fs, lgDir, 1, []testKV{
		{ikey("a", 5, base.InternalKeyKindSet), "1"},
	})
	// A stale descriptor from before the crash.
	f, err := fs.Create(lgDir + "/MANIFEST-000007")
	require.NoError(t, err)
	_, err = f.Write([]byte("stale"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, Repair("db", testOptions(fs, logger)))

	_, err = fs.Stat(lgDir + "/MANIFEST-000007")
	require.Error(t, err)
	_, err = fs.Stat(lgDir + "/lost/MANIFEST-000007")
	require.NoError(t, err)

	// The new descriptor is number 1 and is what CURRENT names.
	current, err := readCurrentFile(fs, lgDir)
	require.NoError(t, err)
	require.Equal(t, "MANIFEST-000001", current)
}

// A delete tombstone in the WAL survives conversion with its kind intact.
func TestRepairPreservesTombstones(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	lgDir := "db/0"
	require.NoError(t, fs.MkdirAll(lgDir, 0755))
	writeTestWAL(t, fs, "db", 1,
		encodeBatch(30,
			testMut{base.InternalKeyKindSet, 0, "a", "1"},
			testMut{kind: base.InternalKeyKindDelete, lg: 0, key: "b"}))

	require.NoError(t, Repair("db", testOptions(fs, logger)))

	require.Equal(t, map[string]string{
		"a#30,SET": "1",
		"b#31,DEL": "",
	}, readTestTable(t, fs, lgDir, 1))

	ve := readDescriptor(t, fs, lgDir)
	require.Equal(t, base.SeqNum(31), ve.LastSeqNum)
}

// Multiple WALs are replayed in file-number order, each flushing its own
// table.
func TestRepairMultipleWALs(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	lgDir := "db/0"
	require.NoError(t, fs.MkdirAll(lgDir, 0755))
	// Written out of order on purpose: replay order is numeric.
	writeTestWAL(t, fs, "db", 0x10,
		encodeBatch(40, testMut{base.InternalKeyKindSet, 0, "x", "40"}))
	writeTestWAL(t, fs, "db", 0x2,
		encodeBatch(20, testMut{base.InternalKeyKindSet, 0, "x", "20"}))

	require.NoError(t, Repair("db", testOptions(fs, logger)))

	ve := readDescriptor(t, fs, lgDir)
	require.Equal(t, base.SeqNum(40), ve.LastSeqNum)
	require.Len(t, ve.NewFiles, 2)
	require.Equal(t, map[string]string{"x#20,SET": "20"}, readTestTable(t, fs, lgDir, 1))
	require.Equal(t, map[string]string{"x#40,SET": "40"}, readTestTable(t, fs, lgDir, 2))

	_, err := fs.Stat("db/lost/00002.log")
	require.NoError(t, err)
	_, err = fs.Stat("db/lost/00010.log")
	require.NoError(t, err)
}

// A caller-provided table cache is reused and never closed by the repair.
func TestRepairBorrowedTableCache(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	lgDir := "db/0"
	writeTestTable(t, fs, lgDir, 1, []testKV{
		{ikey("a", 5, base.InternalKeyKindSet), "1"},
	})

	tc := NewTableCache(10)
	opts := testOptions(fs, logger)
	opts.TableCache = tc
	require.NoError(t, Repair("db", opts))
	require.False(t, logger.contains("create new table cache"))

	// The repair left the borrowed cache for the caller to close.
	ve := readDescriptor(t, fs, lgDir)
	require.Len(t, ve.NewFiles, 1)
	require.NoError(t, tc.Close())
}

// The repair's summary line totals the recovered files and bytes.
func TestRepairSummaryLine(t *testing.T) {
	fs := vfs.NewMem()
	logger := &testLogger{}
	writeTestTable(t, fs, "db/0", 1, []testKV{
		{ikey("a", 5, base.InternalKeyKindSet), "1"},
	})
	require.NoError(t, Repair("db", testOptions(fs, logger)))
	require.True(t, logger.contains("recovered 1 files"))
}
