// Copyright 2026 The GroupKV Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package record reads and writes sequences of records. Each record is a
// stream of bytes that completes before the next record starts. The format is
// shared by the write-ahead log and the descriptor (MANIFEST) file.
//
// The wire format is that the stream is divided into 32KiB blocks, and each
// block contains a number of tightly packed chunks. Chunks cannot cross block
// boundaries. The last block may be shorter than 32 KiB. Any unused bytes in
// a block must be zero.
//
// A record maps to one or more chunks. The chunk format:
//
//	+----------+-----------+-----------+--- ... ---+
//	| CRC (4B) | Size (2B) | Type (1B) | Payload   |
//	+----------+-----------+-----------+--- ... ---+
//
// CRC is computed over the type and payload
// Size is the length of the payload in bytes
// Type is the chunk type
//
// There are four chunk types: whether the chunk is the full record, or the
// first, middle or last chunk of a multi-chunk record. A multi-chunk record
// has one first chunk, zero or more middle chunks, and one last chunk.
//
// The Reader is built for recovery: damage to a chunk never aborts the
// stream. A chunk that cannot be used is handed to the reader's corruption
// callback as a byte count plus a reason, the reader resynchronizes at the
// next block boundary, and reading continues with the following record.
package record

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/groupkv/groupkv/internal/base"
	"github.com/groupkv/groupkv/internal/crc"
)

// These constants are part of the wire format and should not be changed.
const (
	fullChunkEncoding   = 1
	firstChunkEncoding  = 2
	middleChunkEncoding = 3
	lastChunkEncoding   = 4
)

const (
	blockSize  = 32 * 1024
	headerSize = 7
)

// ErrClosedWriter is returned when writing to a closed Writer.
var ErrClosedWriter = errors.New("groupkv/record: closed Writer")

// A CorruptionFn is notified of every byte region the Reader drops. The
// callback must not retain err beyond the call.
type CorruptionFn func(bytes int, err error)

// ReaderOptions configure a Reader.
type ReaderOptions struct {
	// VerifyChecksums determines whether chunk checksums are validated. The
	// repairer deliberately turns verification off so that a damaged record
	// costs a single batch rather than the remainder of the log.
	VerifyChecksums bool

	// Corruption, if non-nil, receives a (byte count, reason) pair for every
	// region of the log the reader drops.
	Corruption CorruptionFn
}

// Reader reads records from an underlying io.Reader.
type Reader struct {
	// r is the underlying reader.
	r io.Reader
	// verify is whether chunk checksums are validated.
	verify bool
	// report receives dropped-region notifications. Never nil; defaults to a
	// no-op.
	report CorruptionFn
	// buf[begin:end] is the payload of the chunk most recently parsed, and
	// buf[:n] the valid portion of the current block.
	begin, end, n int
	// eof is whether the underlying reader has been exhausted.
	eof bool
	// err is any accumulated error.
	err error
	// rec accumulates the payload of a multi-chunk record.
	rec []byte
	// buf is the block buffer.
	buf [blockSize]byte
}

// NewReader returns a new reader.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	report := opts.Corruption
	if report == nil {
		report = func(int, error) {}
	}
	return &Reader{
		r:      r,
		verify: opts.VerifyChecksums,
		report: report,
	}
}

// nextChunk parses the next chunk out of the block buffer, reading the next
// block when the current one is exhausted. Unusable chunks are reported and
// skipped; the reader resynchronizes at the next block boundary.
func (r *Reader) nextChunk() (encoding byte, payload []byte, err error) {
	for {
		if r.end+headerSize <= r.n {
			checksum := binary.LittleEndian.Uint32(r.buf[r.end+0 : r.end+4])
			length := binary.LittleEndian.Uint16(r.buf[r.end+4 : r.end+6])
			encoding := r.buf[r.end+6]

			if checksum == 0 && length == 0 && encoding == 0 {
				// Zero padding at the tail of a block, or a preallocated
				// region the writer never reached. Not corruption.
				r.end = r.n
				continue
			}
			if encoding < fullChunkEncoding || encoding > lastChunkEncoding {
				r.report(r.n-r.end, base.CorruptionErrorf("groupkv/record: invalid chunk type %d", errors.Safe(encoding)))
				r.end = r.n
				continue
			}
			begin := r.end + headerSize
			end := begin + int(length)
			if end > r.n {
				// The chunk claims to straddle a block boundary (or the end
				// of the file).
				r.report(r.n-r.end, base.CorruptionErrorf("groupkv/record: bad chunk length"))
				r.end = r.n
				continue
			}
			if r.verify && checksum != crc.New(r.buf[r.end+6:end]).Value() {
				r.report(r.n-r.end, base.CorruptionErrorf("groupkv/record: checksum mismatch"))
				r.end = r.n
				continue
			}
			r.begin, r.end = begin, end
			return encoding, r.buf[begin:end], nil
		}
		if r.eof {
			// A trailing partial header is the result of the writer dying
			// mid-write; it is silently treated as the end of the log.
			return 0, nil, io.EOF
		}
		n, err := io.ReadFull(r.r, r.buf[:])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			r.eof = true
		} else if err != nil {
			return 0, nil, err
		}
		if n == 0 {
			return 0, nil, io.EOF
		}
		r.begin, r.end, r.n = 0, 0, n
	}
}

// ReadRecord returns the next complete record, or io.EOF if the log is
// exhausted. The returned slice is only valid until the next call to
// ReadRecord. Dropped regions are surfaced through the corruption callback,
// never as an error: an error return other than io.EOF means the underlying
// reader failed.
func (r *Reader) ReadRecord() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.rec = r.rec[:0]
	inFragment := false
	for {
		encoding, payload, err := r.nextChunk()
		if err != nil {
			if err == io.EOF && inFragment {
				r.report(len(r.rec), base.CorruptionErrorf("groupkv/record: partial record without end"))
			}
			if err != io.EOF {
				r.err = err
			}
			return nil, err
		}
		switch encoding {
		case fullChunkEncoding:
			if inFragment {
				r.report(len(r.rec), base.CorruptionErrorf("groupkv/record: partial record without end"))
			}
			return payload, nil
		case firstChunkEncoding:
			if inFragment {
				r.report(len(r.rec), base.CorruptionErrorf("groupkv/record: partial record without end"))
			}
			r.rec = append(r.rec[:0], payload...)
			inFragment = true
		case middleChunkEncoding:
			if !inFragment {
				r.report(len(payload), base.CorruptionErrorf("groupkv/record: missing start of fragmented record"))
				continue
			}
			r.rec = append(r.rec, payload...)
		case lastChunkEncoding:
			if !inFragment {
				r.report(len(payload), base.CorruptionErrorf("groupkv/record: missing start of fragmented record"))
				continue
			}
			return append(r.rec, payload...), nil
		}
	}
}

type flusher interface {
	Flush() error
}

// Writer writes records to an underlying io.Writer.
type Writer struct {
	// w is the underlying writer.
	w io.Writer
	// f is w as a flusher.
	f flusher
	// buf[i:j] is the bytes that will become the current chunk.
	// The low bound, i, includes the chunk header.
	i, j int
	// buf[:written] has already been written to w.
	// written is zero unless Flush has been called.
	written int
	// first is whether the current chunk is the first chunk of the record.
	first bool
	// pending is whether a chunk is buffered but not yet written.
	pending bool
	// err is any accumulated error.
	err error
	// buf is the buffer.
	buf [blockSize]byte
}

// NewWriter returns a new Writer.
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(flusher)
	return &Writer{w: w, f: f}
}

// fillHeader fills in the header for the pending chunk.
func (w *Writer) fillHeader(last bool) {
	if w.i+headerSize > w.j || w.j > blockSize {
		panic("groupkv/record: bad writer state")
	}
	if last {
		if w.first {
			w.buf[w.i+6] = fullChunkEncoding
		} else {
			w.buf[w.i+6] = lastChunkEncoding
		}
	} else {
		if w.first {
			w.buf[w.i+6] = firstChunkEncoding
		} else {
			w.buf[w.i+6] = middleChunkEncoding
		}
	}
	binary.LittleEndian.PutUint32(w.buf[w.i+0:w.i+4], crc.New(w.buf[w.i+6:w.j]).Value())
	binary.LittleEndian.PutUint16(w.buf[w.i+4:w.i+6], uint16(w.j-w.i-headerSize))
}

// writeBlock writes the buffered block to the underlying writer, and reserves
// space for the next chunk's header.
func (w *Writer) writeBlock() {
	_, w.err = w.w.Write(w.buf[w.written:])
	w.i = 0
	w.j = headerSize
	w.written = 0
}

// writePending finishes the current record and writes the buffer to the
// underlying writer.
func (w *Writer) writePending() {
	if w.err != nil {
		return
	}
	if w.pending {
		w.fillHeader(true)
		w.pending = false
	}
	_, w.err = w.w.Write(w.buf[w.written:w.j])
	w.written = w.j
}

// Close finishes the current record and closes the writer.
func (w *Writer) Close() error {
	w.writePending()
	if w.err != nil {
		return w.err
	}
	w.err = ErrClosedWriter
	return nil
}

// Flush finishes the current record, writes to the underlying writer, and
// flushes it if that writer implements interface{ Flush() error }.
func (w *Writer) Flush() error {
	w.writePending()
	if w.err != nil {
		return w.err
	}
	if w.f != nil {
		w.err = w.f.Flush()
		return w.err
	}
	return nil
}

// Next returns a writer for the next record. The writer returned becomes
// stale after the next Close, Flush or Next call, and should no longer be
// used.
func (w *Writer) Next() (io.Writer, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.pending {
		w.fillHeader(true)
	}
	w.i = w.j
	w.j = w.j + headerSize
	// Check if there is room in the block for the header.
	if w.j > blockSize {
		// Fill in the rest of the block with zeroes.
		clear(w.buf[w.i:])
		w.writeBlock()
		if w.err != nil {
			return nil, w.err
		}
	}
	w.first = true
	w.pending = true
	return singleWriter{w}, nil
}

// WriteRecord writes a complete record.
func (w *Writer) WriteRecord(p []byte) error {
	if w.err != nil {
		return w.err
	}
	t, err := w.Next()
	if err != nil {
		return err
	}
	if _, err := t.Write(p); err != nil {
		return err
	}
	w.writePending()
	return w.err
}

type singleWriter struct {
	w *Writer
}

func (x singleWriter) Write(p []byte) (int, error) {
	w := x.w
	if w.err != nil {
		return 0, w.err
	}
	n0 := len(p)
	for len(p) > 0 {
		// Write a block, if it is full.
		if w.j == blockSize {
			w.fillHeader(false)
			w.writeBlock()
			if w.err != nil {
				return 0, w.err
			}
			w.first = false
		}
		// Copy bytes into the buffer.
		n := copy(w.buf[w.j:], p)
		w.j += n
		p = p[n:]
	}
	return n0, nil
}
