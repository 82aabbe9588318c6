// Copyright 2018, Maxim Suhanov. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package scan drives the brute-force search for compressed memory pages.
//
// The store leaves no marker locating its blocks inside a capture, so the
// scanner attempts a decode at candidate offsets and keeps whatever decodes
// without a structural violation. There is no checksum in either format;
// a bounded false-positive rate is inherent to the approach and is not a
// defect. The byte-wise fallback stride is likewise deliberate: blocks are
// not guaranteed to start on any boundary smaller than a page.
package scan

import (
	"context"
	"fmt"
	"io"

	"github.com/msuhanov/winmem-decompress/xpress"
)

// Format selects which store variant to decode.
type Format int

const (
	Huffman Format = iota // LZ77+Huffman blocks (compressed page files)
	Plain                 // plain LZ77 blocks (the resident store)
)

func (f Format) String() string {
	if f == Plain {
		return "plain"
	}
	return "huffman"
}

// blockDecoder is one reusable single-block decoder. Implementations keep
// private scratch state; each scan worker owns its own.
type blockDecoder interface {
	Decompress(src []byte) xpress.Result
}

func newDecoder(f Format) blockDecoder {
	if f == Plain {
		return new(xpress.PlainDecoder)
	}
	return new(xpress.HuffmanDecoder)
}

// Config controls a scan. The zero value scans the whole input for Huffman
// blocks, byte by byte, on one worker.
type Config struct {
	Format Format

	// Start and End restrict where candidate blocks may begin. A block
	// starting before End may still consume bytes past it. End <= 0 means
	// the end of the input. Restricting the range is how partitioned
	// invocations split a capture between processes.
	Start int64
	End   int64

	// Stride is the advance after a rejected candidate. The default 1
	// finds blocks at any alignment; the store's own chunks are 16-byte
	// aligned, so Plain scans can use 16.
	Stride int

	// MinOutput drops blocks that decode to fewer bytes. Defaults to 1;
	// the original tool used 1024 to cut down on tiny false positives.
	MinOutput int

	// ZeroPrefix skips candidates beginning with this many zero bytes
	// without attempting a decode; zero-filled regions cannot hold a
	// block worth keeping. 0 disables the shortcut.
	ZeroPrefix int

	// Workers is the number of concurrent scan goroutines. Output order
	// and content are identical to a sequential scan when Stride is 1.
	Workers int

	// Window is the buffer size used by ScanReader. Defaults to 32 MiB.
	Window int

	// Progress, when set, is invoked periodically with cumulative totals.
	Progress func(Stats)
}

// withDefaults returns cfg with zero fields resolved against input covering
// offsets [lo, hi), or an error for an unusable range.
func (cfg Config) withDefaults(lo, hi int64) (Config, error) {
	if cfg.Start < lo {
		cfg.Start = lo
	}
	if cfg.End <= 0 {
		cfg.End = hi
	}
	if cfg.Start > cfg.End || cfg.End > hi {
		return cfg, fmt.Errorf("scan: offset range [%d, %d) outside input [%d, %d)", cfg.Start, cfg.End, lo, hi)
	}
	if cfg.Stride <= 0 {
		cfg.Stride = 1
	}
	if cfg.MinOutput <= 0 {
		cfg.MinOutput = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = 32 << 20
	}
	if cfg.Window < 2*xpress.MaxEncodedSize {
		cfg.Window = 2 * xpress.MaxEncodedSize
	}
	return cfg, nil
}

// accept is the validation rule: a block is kept when it decoded without a
// structural violation and is not trivially small. There is nothing stronger
// to check; the format carries no checksum.
func (cfg *Config) accept(r xpress.Result) bool {
	return r.Ok() && len(r.Data) >= cfg.MinOutput
}

// Stats aggregates scan outcomes. Per-candidate failures are never reported
// individually (there are billions on a large capture), only counted.
type Stats struct {
	Offsets int64 // candidate offsets attempted
	Pages   int64 // pages accepted and written
	Skipped int64 // candidates skipped by the zero-prefix shortcut

	// Rejects counts rejected candidates by failure kind. The FailNone
	// slot counts blocks that decoded but fell below MinOutput.
	Rejects [xpress.FailureCount]int64

	// Resume is the first offset not examined, for restarting a scan.
	Resume int64
}

func (st *Stats) add(o Stats) {
	st.Offsets += o.Offsets
	st.Pages += o.Pages
	st.Skipped += o.Skipped
	for i, n := range o.Rejects {
		st.Rejects[i] += n
	}
	if o.Resume > st.Resume {
		st.Resume = o.Resume
	}
}

// Rejected returns the total number of rejected candidates.
func (st *Stats) Rejected() (n int64) {
	for _, c := range st.Rejects {
		n += c
	}
	return n
}

// Scanner scans one in-memory input. The input is read-only and may be
// shared; the output writer is owned exclusively by the scanner while Run
// is in flight.
type Scanner struct {
	src  []byte
	base int64 // stream offset of src[0]; nonzero for windowed scans
	pw   pageWriter
	cfg  Config
}

// New returns a Scanner over src writing accepted pages to w.
func New(src []byte, w io.Writer, cfg Config) (*Scanner, error) {
	return newAt(src, 0, w, cfg)
}

// newAt is New for a buffer whose first byte sits at stream offset base;
// all configured and reported offsets stay stream-absolute.
func newAt(src []byte, base int64, w io.Writer, cfg Config) (*Scanner, error) {
	cfg, err := cfg.withDefaults(base, base+int64(len(src)))
	if err != nil {
		return nil, err
	}
	return &Scanner{src: src, base: base, pw: pageWriter{w: w}, cfg: cfg}, nil
}

// window returns the decode window for a candidate at absolute offset off.
func (s *Scanner) window(off int64) []byte {
	end := clamp(off+xpress.MaxEncodedSize, s.base+int64(len(s.src)))
	return s.src[off-s.base : end-s.base]
}

// Run scans the configured range and returns aggregate statistics. The only
// errors are fatal ones: an unwritable sink or cancellation; both carry the
// offset reached so a partitioned scan can resume.
func (s *Scanner) Run(ctx context.Context) (Stats, error) {
	if s.cfg.Workers > 1 && s.cfg.End-s.cfg.Start > int64(s.cfg.Workers) {
		return s.runParallel(ctx)
	}
	return s.runSequential(ctx)
}

func (s *Scanner) runSequential(ctx context.Context) (Stats, error) {
	dec := newDecoder(s.cfg.Format)
	var st Stats
	off := s.cfg.Start
	for off < s.cfg.End {
		if st.Offsets&1023 == 0 {
			if err := ctx.Err(); err != nil {
				st.Resume = off
				return st, fmt.Errorf("scan: canceled at offset %d: %w", off, err)
			}
		}
		// The window may extend past End: a block starting inside the
		// range is decoded in full.
		window := s.window(off)
		if s.cfg.skipZeros(window) {
			st.Skipped++
			off += int64(s.cfg.Stride)
			continue
		}
		st.Offsets++
		r := dec.Decompress(window)
		if !s.cfg.accept(r) {
			st.Rejects[r.Failure]++
			off += int64(s.cfg.Stride)
			continue
		}
		if err := s.pw.emit(r.Data); err != nil {
			st.Resume = off
			return st, fmt.Errorf("scan: writing page found at offset %d: %w", off, err)
		}
		st.Pages++
		// Skip the bytes this block consumed; re-decoding its interior
		// would only yield overlapping noise.
		off = s.gridUp(off + int64(r.Consumed))
	}
	st.Resume = off
	return st, nil
}

// gridUp returns the first candidate offset at or after off. Candidates live
// on one stride grid anchored at Start for the whole scan, so skipping a
// consumed block cannot shift which offsets are attempted afterwards; that
// keeps sequential and partitioned scans on the same grid at any stride.
func (s *Scanner) gridUp(off int64) int64 {
	if rem := (off - s.cfg.Start) % int64(s.cfg.Stride); rem != 0 {
		off += int64(s.cfg.Stride) - rem
	}
	return off
}

// skipZeros reports whether the zero-prefix shortcut applies to window.
func (cfg *Config) skipZeros(window []byte) bool {
	if cfg.ZeroPrefix <= 0 || len(window) < cfg.ZeroPrefix {
		return false
	}
	for _, b := range window[:cfg.ZeroPrefix] {
		if b != 0 {
			return false
		}
	}
	return true
}

func clamp(v, max int64) int64 {
	if v > max {
		return max
	}
	return v
}
