// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package groupkv implements the repair path of a multi-locality-group
// LSM-tree storage engine.
//
// When a database's descriptor (MANIFEST) is lost or unusably corrupt, Repair
// rebuilds a consistent descriptor for every locality group from the files
// that survive on disk:
//
//  1. Every table is scanned to recover its key bounds and the largest
//     sequence number it holds.
//  2. Any WAL files are converted to tables. Records are deduplicated against
//     the sequence numbers already present in surviving tables and fanned out
//     to the locality group each mutation is tagged with; each new table is
//     scanned in turn.
//  3. A fresh descriptor is generated per locality group: log number zero,
//     next-file-number one past the largest file number found, last-sequence
//     the largest sequence number seen, compaction state cleared, and every
//     table placed at level 0.
//
// Repair trades precision for yield: anything that cannot be recovered is
// logged, archived under lost/, and skipped, and the repair presses on.
package groupkv

import (
	"bytes"
	"io"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/groupkv/groupkv/batchrepr"
	"github.com/groupkv/groupkv/cache"
	"github.com/groupkv/groupkv/internal/base"
	"github.com/groupkv/groupkv/internal/manifest"
	"github.com/groupkv/groupkv/record"
	"github.com/groupkv/groupkv/sstable"
	"github.com/groupkv/groupkv/vfs"
)

// tableCacheRepairSize bounds the table cache a repair creates for itself.
// It can be small since we expect each table to be opened once.
const tableCacheRepairSize = 100

// blockCacheRepairSize bounds the block cache a repair creates for itself.
const blockCacheRepairSize = 8 << 20 // 8 MB

// ownership tags a resource as created by the repairer or borrowed from the
// caller. Borrowed resources are never released by the repairer.
type ownership int8

const (
	borrowed ownership = iota
	owned
)

// Repair rebuilds a usable descriptor for every locality group of the
// database in dirname from whatever WAL and table files survive there. It
// returns nil if a descriptor was installed for every group; otherwise it
// returns the first failing group's error, after attempting the rest.
//
// The database must be quiescent: no other process may mutate dirname for
// the duration of the repair.
func Repair(dirname string, opts *Options) error {
	if opts == nil {
		opts = &Options{}
	}
	opts = opts.EnsureDefaults()
	if err := opts.FS.MkdirAll(dirname, 0755); err != nil {
		return err
	}
	r := newDBRepairer(dirname, opts)
	defer r.close()
	return r.run()
}

// tableInfo is the result of scanning one table: its file metadata plus the
// largest sequence number observed in it.
type tableInfo struct {
	meta      manifest.FileMetadata
	maxSeqNum base.SeqNum
}

// dbRepairer coordinates the repair of a whole database: it owns the shared
// WAL stream under the database root and fans work out to one lgRepairer per
// locality group.
type dbRepairer struct {
	dirname string
	fs      vfs.FS
	opts    *Options
	logger  base.Logger

	lgs       []base.LGID
	repairers map[base.LGID]*lgRepairer

	tableCache    *TableCache
	tableCacheOwn ownership
	blockCache    *cache.Cache
	blockCacheOwn ownership

	logFiles []base.FileNum
	// logNum is one past the largest WAL number found. The synthesized
	// descriptors do not reference it (their log number is zero), but the
	// engine's reopen path uses it to seed new WAL numbering.
	logNum     base.FileNum
	lastSeqNum base.SeqNum
}

func newDBRepairer(dirname string, opts *Options) *dbRepairer {
	r := &dbRepairer{
		dirname:       dirname,
		fs:            opts.FS,
		opts:          opts,
		logger:        opts.Logger,
		lgs:           opts.LGList,
		repairers:     make(map[base.LGID]*lgRepairer, len(opts.LGList)),
		tableCache:    opts.TableCache,
		tableCacheOwn: borrowed,
		blockCache:    opts.Cache,
		blockCacheOwn: borrowed,
	}
	if r.tableCache == nil {
		r.logger.Infof("[%s] create new table cache in repairer", dirname)
		r.tableCache = NewTableCache(tableCacheRepairSize)
		r.tableCacheOwn = owned
	}
	if r.blockCache == nil {
		r.blockCache = cache.New(blockCacheRepairSize)
		r.blockCacheOwn = owned
	}
	for _, lg := range r.lgs {
		r.repairers[lg] = &lgRepairer{
			dirname:     base.MakeLGPath(r.fs, dirname, lg),
			lg:          lg,
			fs:          r.fs,
			opts:        opts,
			logger:      r.logger,
			tableCache:  r.tableCache,
			blockCache:  r.blockCache,
			cacheID:     r.blockCache.NewID(),
			nextFileNum: 1,
		}
	}
	return r
}

// close releases the resources the repairer created for itself. Borrowed
// caches are left untouched.
func (r *dbRepairer) close() {
	if r.tableCacheOwn == owned {
		_ = r.tableCache.Close()
	}
	// A repair-created block cache simply becomes garbage once the repairer
	// is dropped; a borrowed one must not be disturbed.
}

func (r *dbRepairer) run() error {
	if err := r.findFiles(); err != nil {
		return err
	}
	r.extractMetaData()
	r.convertLogFilesToTables()
	err := r.writeDescriptor()
	if err == nil {
		var files int
		var bytes uint64
		for _, lg := range r.lgs {
			for _, t := range r.repairers[lg].tables {
				files++
				bytes += t.meta.Size
			}
		}
		r.logger.Infof("**** Repaired groupkv %s; recovered %d files; %d bytes. "+
			"Some data may have been lost. ****", r.dirname, files, bytes)
	}
	return err
}

// findFiles enumerates the database root, collecting WAL numbers, then asks
// every locality group to enumerate its own subdirectory. A group whose
// enumeration fails is logged and skipped; an unreadable or empty root
// aborts the repair before anything is mutated.
func (r *dbRepairer) findFiles() error {
	names, err := r.fs.List(r.dirname)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.Mark(
			errors.Newf("groupkv: repair found no files in %q", r.dirname),
			base.ErrNotFound)
	}
	for _, name := range names {
		ft, fn, ok := base.ParseFilename(r.fs, name)
		if !ok {
			continue
		}
		if ft == base.FileTypeLog {
			r.logFiles = append(r.logFiles, fn)
			if fn+1 > r.logNum {
				r.logNum = fn + 1
			}
		}
	}
	slices.Sort(r.logFiles)

	for _, lg := range r.lgs {
		if err := r.repairers[lg].findFiles(); err != nil {
			r.logger.Infof("[%s][lg:%s] find files: %v", r.dirname, lg, err)
		}
	}
	return nil
}

// extractMetaData scans every locality group's surviving tables. The largest
// sequence number seen anywhere seeds the duplicate suppression for WAL
// replay.
func (r *dbRepairer) extractMetaData() {
	for _, lg := range r.lgs {
		m := r.repairers[lg]
		m.extractMetaData()
		if r.lastSeqNum < m.maxSeqNum {
			r.lastSeqNum = m.maxSeqNum
		}
	}
}

func (r *dbRepairer) convertLogFilesToTables() {
	for _, logNum := range r.logFiles {
		logName := base.MakeFilepath(r.fs, r.dirname, base.FileTypeLog, logNum)
		if err := r.convertLogToTable(logNum); err != nil {
			r.logger.Infof("[%s] log #%d: ignoring conversion error: %v",
				r.dirname, logNum, err)
		}
		archiveFile(r.fs, r.logger, logName)
	}
}

// convertLogToTable replays one WAL. Each surviving record is split by
// locality group and inserted into the corresponding memtable; after the log
// is exhausted, every group with a live memtable flushes it to a new table.
// Per-record damage is reported and skipped, never fatal.
func (r *dbRepairer) convertLogToTable(logNum base.FileNum) error {
	logName := base.MakeFilepath(r.fs, r.dirname, base.FileTypeLog, logNum)
	f, err := r.fs.Open(logName)
	if err != nil {
		return err
	}

	// Checksums are deliberately off: a damaged record should cost a single
	// batch, not the remainder of the log. The engine tolerates the resulting
	// sequence gaps, and table scans re-validate key shapes afterwards.
	rr := record.NewReader(f, record.ReaderOptions{
		VerifyChecksums: false,
		Corruption: func(n int, err error) {
			r.logger.Infof("[%s] log #%d: dropping %d bytes; %v", r.dirname, logNum, n, err)
		},
	})

	counter := 0
	var readErr error
	for {
		rec, err := rr.ReadRecord()
		if err != nil {
			// io.EOF is the clean end of the log; anything else is a
			// filesystem failure. Either way the records read so far are
			// flushed below.
			if err != io.EOF {
				readErr = err
			}
			break
		}
		if len(rec) < batchrepr.HeaderLen {
			r.logger.Infof("[%s] log #%d: dropping %d bytes; %v", r.dirname, logNum,
				len(rec), base.CorruptionErrorf("groupkv: log record too small"))
			continue
		}
		h, _ := batchrepr.ReadHeader(rec)
		if h.SeqNum <= r.lastSeqNum {
			r.logger.Infof("[%s] log #%d: duplicate record, ignore %d ~ %d",
				r.dirname, logNum, h.SeqNum, uint64(h.SeqNum)+uint64(h.Count)-1)
			continue
		}

		lgBatches := make(map[base.LGID][]byte, 1)
		if len(r.lgs) == 1 {
			lgBatches[r.lgs[0]] = rec
		} else {
			lgBatches, err = batchrepr.SeparateLocalityGroups(rec, r.lgs)
			if err != nil {
				r.logger.Infof("[%s] log #%d: dropping %d bytes; %v", r.dirname, logNum, len(rec), err)
				continue
			}
		}
		for _, lg := range r.lgs {
			sub := lgBatches[lg]
			if sub == nil {
				continue
			}
			if err := r.repairers[lg].insertMemTable(sub, h.SeqNum); err != nil {
				r.logger.Infof("[%s][lg:%s] insert log #%d: ignoring %v",
					r.dirname, lg, logNum, err)
			} else {
				subHeader, _ := batchrepr.ReadHeader(sub)
				counter += int(subHeader.Count)
			}
		}
		// The batch's sequence range counts as seen even when some of its
		// inserts failed: "already assigned" takes precedence over
		// "successfully persisted".
		r.lastSeqNum = h.SeqNum + base.SeqNum(h.Count) - 1
	}
	err = f.Close()
	if readErr != nil {
		err = readErr
	}

	for _, lg := range r.lgs {
		m := r.repairers[lg]
		if !m.hasMemTable() {
			continue
		}
		fileNum, buildErr := m.buildTableFile(logNum)
		if buildErr != nil {
			r.logger.Infof("[%s][lg:%s] build table from log #%d: ignoring %v",
				r.dirname, lg, logNum, buildErr)
			continue
		}
		if fileNum == 0 {
			// The memtable existed but produced no table (every insert into
			// it had failed). Nothing to record.
			continue
		}
		if metaErr := m.addTableMeta(fileNum); metaErr != nil {
			r.logger.Infof("[%s][lg:%s] add table meta #%s: ignoring %v",
				r.dirname, lg, fileNum, metaErr)
		}
	}
	r.logger.Infof("[%s] log #%d to table: %d entries", r.dirname, logNum, counter)
	return err
}

// writeDescriptor installs a fresh descriptor in every locality group. All
// groups are attempted; the first failure is returned.
func (r *dbRepairer) writeDescriptor() error {
	var firstErr error
	for _, lg := range r.lgs {
		if err := r.repairers[lg].writeDescriptor(); err != nil {
			r.logger.Errorf("[%s][lg:%s] write descriptor: %v", r.dirname, lg, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// lgRepairer repairs a single locality group's sub-LSM: it scans the group's
// tables, buffers the group's share of replayed WAL records, flushes them to
// new tables and installs the group's fresh descriptor.
type lgRepairer struct {
	dirname string
	lg      base.LGID
	fs      vfs.FS
	opts    *Options
	logger  base.Logger

	tableCache *TableCache
	blockCache *cache.Cache
	cacheID    uint64

	manifests   []string
	tableNums   []base.FileNum
	logs        []base.FileNum
	tables      []tableInfo
	nextFileNum base.FileNum
	mem         *memTable
	maxSeqNum   base.SeqNum
	edit        manifest.VersionEdit
}

// findFiles enumerates the group's subdirectory. Old manifests become
// archival candidates, tables become scan targets, and every parsed number
// advances nextFileNum so that files created during repair cannot collide.
func (m *lgRepairer) findFiles() error {
	names, err := m.fs.List(m.dirname)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.Mark(
			errors.Newf("groupkv: repair found no files in %q", m.dirname),
			base.ErrNotFound)
	}
	for _, name := range names {
		ft, fn, ok := base.ParseFilename(m.fs, name)
		if !ok {
			// Ignore other files.
			continue
		}
		if fn+1 > m.nextFileNum {
			m.nextFileNum = fn + 1
		}
		if ft == base.FileTypeManifest {
			m.manifests = append(m.manifests, name)
			continue
		}
		switch ft {
		case base.FileTypeTable:
			m.tableNums = append(m.tableNums, fn)
		case base.FileTypeLog:
			m.logs = append(m.logs, fn)
		}
	}
	slices.Sort(m.tableNums)
	return nil
}

// extractMetaData scans every discovered table. A table that cannot be
// scanned is excluded from the new descriptor and archived.
func (m *lgRepairer) extractMetaData() {
	for _, fn := range m.tableNums {
		t := tableInfo{meta: manifest.FileMetadata{FileNum: fn}}
		if err := m.scanTable(&t); err != nil {
			m.logger.Infof("[%s] table #%s: ignoring %v", m.dirname, fn, err)
			m.archiveTable(fn)
			continue
		}
		m.tables = append(m.tables, t)
		if t.maxSeqNum > m.maxSeqNum {
			m.maxSeqNum = t.maxSeqNum
		}
	}
}

// scanTable iterates a table from first to last key, recovering its size,
// bounds and largest sequence number. Unparsable keys are logged and skipped;
// they contribute nothing to the recovered metadata but do not fail the scan.
// A table yielding zero parseable keys fails with a corruption error.
func (m *lgRepairer) scanTable(t *tableInfo) error {
	fname := base.MakeFilepath(m.fs, m.dirname, base.FileTypeTable, t.meta.FileNum)
	fi, err := m.fs.Stat(fname)
	if err != nil {
		return err
	}
	t.meta.Size = uint64(fi.Size())

	iter, err := m.tableCache.newIter(m.fs, m.dirname, t.meta.FileNum, t.meta.Size,
		m.readerOptions(t.meta.FileNum))
	if err != nil {
		return err
	}
	counter := 0
	empty := true
	for ok := iter.First(); ok; ok = iter.Next() {
		key := iter.Key()
		ik, valid := base.ParseInternalKey(key)
		if !valid {
			m.logger.Infof("[%s] table #%s: unparsable key %s",
				m.dirname, t.meta.FileNum, base.FormatBytes(key))
			continue
		}
		counter++
		if empty {
			empty = false
			t.meta.Smallest = ik.Clone()
		}
		t.meta.Largest = ik.Clone()
		if ik.SeqNum() > t.maxSeqNum {
			t.maxSeqNum = ik.SeqNum()
		}
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return err
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if empty {
		return base.CorruptionErrorf("groupkv: sst is empty")
	}
	m.logger.Infof("[%s] table #%s: %d entries", m.dirname, t.meta.FileNum, counter)
	return nil
}

// readerOptions returns the options every table of this group is opened
// with. Scans verify block checksums: a table that cannot be read cleanly is
// excluded from the descriptor rather than trusted.
func (m *lgRepairer) readerOptions(fn base.FileNum) sstable.ReaderOptions {
	return sstable.ReaderOptions{
		Comparer:        m.opts.Comparer,
		FilterPolicy:    m.opts.FilterPolicy,
		Cache:           m.blockCache,
		CacheID:         m.cacheID,
		FileNum:         fn,
		VerifyChecksums: true,
	}
}

// insertMemTable buffers one locality group's share of a replayed batch,
// creating the memtable on first use. The caller guarantees monotonicity of
// the shared sequence space; the assertion guards the invariant.
func (m *lgRepairer) insertMemTable(repr []byte, seqNum base.SeqNum) error {
	h, ok := batchrepr.ReadHeader(repr)
	if !ok {
		return batchrepr.ErrInvalidBatch
	}
	if m.mem == nil {
		m.mem = newMemTable(m.opts.Comparer)
	}
	if seqNum <= m.maxSeqNum {
		return errors.AssertionFailedf(
			"groupkv: batch seqnum %d is not newer than max seqnum %d", seqNum, m.maxSeqNum)
	}
	m.maxSeqNum = seqNum + base.SeqNum(h.Count) - 1
	return m.mem.apply(repr, seqNum)
}

// hasMemTable reports whether any insert has been routed to this group since
// the last flush.
func (m *lgRepairer) hasMemTable() bool {
	return m.mem != nil
}

// buildTableFile flushes the group's memtable to a newly numbered table. The
// memtable is released regardless of the outcome. A memtable holding no
// entries builds nothing and returns file number zero.
func (m *lgRepairer) buildTableFile(logNum base.FileNum) (base.FileNum, error) {
	meta := manifest.FileMetadata{FileNum: m.nextFileNum}
	m.nextFileNum++
	iter := m.mem.newIter()
	err := buildTable(m.fs, m.dirname, m.opts, m.tableCache, m.readerOptions(meta.FileNum), iter, &meta)
	m.mem = nil
	if err != nil {
		return 0, err
	}
	if meta.Size == 0 {
		m.logger.Infof("[%s][lg:%s] log #%d: no entries saved", m.dirname, m.lg, logNum)
		return 0, nil
	}
	m.tableNums = append(m.tableNums, meta.FileNum)
	m.logger.Infof("[%s][lg:%s] log #%d: saved to table #%s",
		m.dirname, m.lg, logNum, meta.FileNum)
	return meta.FileNum, nil
}

// addTableMeta re-scans a freshly built table to obtain its authoritative
// bounds and sequence numbers, recording it for descriptor emission. A table
// that fails its own scan is archived, exactly like a pre-existing one.
func (m *lgRepairer) addTableMeta(fn base.FileNum) error {
	t := tableInfo{meta: manifest.FileMetadata{FileNum: fn}}
	if err := m.scanTable(&t); err != nil {
		m.archiveTable(fn)
		return err
	}
	m.tables = append(m.tables, t)
	return nil
}

// writeDescriptor synthesizes this group's new descriptor and installs it.
//
// The install sequence is deliberate: the edit is written and synced to a
// temp file first; only once the new descriptor's bytes are durable are the
// old manifests archived; the temp is then renamed to the canonical
// descriptor path; and finally CURRENT is repointed, which is the atomic
// commit. A crash between the last two steps leaves a directory a subsequent
// repair handles fine.
func (m *lgRepairer) writeDescriptor() error {
	tmp := base.MakeFilepath(m.fs, m.dirname, base.FileTypeTemp, 1)
	f, err := m.fs.Create(tmp)
	if err != nil {
		return err
	}

	var maxSeqNum base.SeqNum
	for i := range m.tables {
		if maxSeqNum < m.tables[i].maxSeqNum {
			maxSeqNum = m.tables[i].maxSeqNum
		}
	}

	m.edit = manifest.VersionEdit{
		ComparerName: m.opts.Comparer.Name,
		LogNum:       0,
		NextFileNum:  m.nextFileNum,
		LastSeqNum:   maxSeqNum,
	}
	for i := range m.tables {
		// TODO(opt): separate out into multiple levels.
		m.edit.NewFiles = append(m.edit.NewFiles, manifest.NewFileEntry{
			Level: 0,
			Meta:  m.tables[i].meta,
		})
	}

	var buf bytes.Buffer
	if err == nil {
		err = m.edit.Encode(&buf)
	}
	if err == nil {
		w := record.NewWriter(f)
		err = w.WriteRecord(buf.Bytes())
		if closeErr := w.Close(); err == nil {
			err = closeErr
		}
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = m.fs.Remove(tmp)
		return err
	}

	// Discard older manifests. Only now that the new descriptor's bytes exist
	// may the old ones cease to be reachable.
	for _, name := range m.manifests {
		archiveFile(m.fs, m.logger, m.fs.PathJoin(m.dirname, name))
	}

	// Install new manifest.
	if err := m.fs.Rename(tmp, base.MakeFilepath(m.fs, m.dirname, base.FileTypeManifest, 1)); err != nil {
		_ = m.fs.Remove(tmp)
		return err
	}
	return setCurrentFile(m.fs, m.dirname, 1)
}

// archiveTable archives a table file and drops any cached state for it.
func (m *lgRepairer) archiveTable(fn base.FileNum) {
	m.tableCache.Evict(m.dirname, fn)
	m.blockCache.EvictFile(m.cacheID, fn)
	archiveFile(m.fs, m.logger, base.MakeFilepath(m.fs, m.dirname, base.FileTypeTable, fn))
}

// archiveFile moves dir/foo to dir/lost/foo, creating lost/ if needed.
// Archival failures are logged, never returned: quarantining is best effort
// and must not stop a repair.
func archiveFile(fs vfs.FS, logger base.Logger, fname string) {
	dir := fs.PathDir(fname)
	lost := fs.PathJoin(dir, "lost")
	_ = fs.MkdirAll(lost, 0755)
	if err := fs.Rename(fname, fs.PathJoin(lost, fs.PathBase(fname))); err != nil {
		logger.Errorf("archiving %s: %v", fname, err)
		return
	}
	logger.Infof("archived %s", fname)
}
