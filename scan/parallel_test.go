// Copyright 2018, Maxim Suhanov. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package scan

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/msuhanov/winmem-decompress/internal/testutil"
	"github.com/msuhanov/winmem-decompress/xpress"
)

// parallelFixture is 64 KiB of zero fill and pseudo-random garbage with four
// blocks embedded, one of them crossing a four-way partition boundary.
func parallelFixture() []byte {
	buf := make([]byte, 65536)
	copy(buf[55000:60000], testutil.NewRand(3).Bytes(5000))
	copy(buf[100:], fullBlock)
	copy(buf[16000:], fullBlock) // straddles 16384 with four workers
	copy(buf[30000:], shortBlock)
	copy(buf[48000:], fullBlock)
	return buf
}

func TestScanParallel(t *testing.T) {
	buf := parallelFixture()

	var seqOut bytes.Buffer
	s, err := New(buf, &seqOut, Config{Workers: 1})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	seq, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("sequential Run() error: %v", err)
	}
	if seq.Pages != 4 {
		t.Fatalf("sequential scan: Pages = %d, want 4", seq.Pages)
	}

	// Workers walk the same candidate grid as a sequential scan, so
	// output, page count and resume offset must be identical for any
	// worker count. Attempt counters legitimately differ: workers probe
	// offsets inside accepted blocks that a sequential scan steps over.
	for _, workers := range []int{2, 3, 4, 7} {
		var parOut bytes.Buffer
		s, err := New(buf, &parOut, Config{Workers: workers})
		if err != nil {
			t.Fatalf("workers %d: New() error: %v", workers, err)
		}
		par, err := s.Run(context.Background())
		if err != nil {
			t.Fatalf("workers %d: Run() error: %v", workers, err)
		}
		if par.Pages != seq.Pages {
			t.Errorf("workers %d: Pages = %d, want %d", workers, par.Pages, seq.Pages)
		}
		if par.Resume != seq.Resume {
			t.Errorf("workers %d: Resume = %d, want %d", workers, par.Resume, seq.Resume)
		}
		if diff := cmp.Diff(seqOut.Bytes(), parOut.Bytes()); diff != "" {
			t.Errorf("workers %d: output mismatch (-sequential +parallel):\n%s", workers, diff)
		}
	}
}

func TestScanParallelStride(t *testing.T) {
	// A plain-format scan walks a 16-byte candidate grid. Partition
	// boundaries must stay on that grid: a worker starting off-grid would
	// never attempt a genuine block sitting on it, and could emit some
	// mid-block decode in its place.
	page := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 100)[:xpress.PageSize]
	comp := xpress.CompressPlain(page)
	buf := make([]byte, 99000)
	copy(buf[48000:], comp)

	cfg := Config{Format: Plain, Stride: 16, MinOutput: 1024, ZeroPrefix: 12}

	var seqOut bytes.Buffer
	s, err := New(buf, &seqOut, cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	seq, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("sequential Run() error: %v", err)
	}
	if seq.Pages != 1 {
		t.Fatalf("sequential scan: Pages = %d, want 1", seq.Pages)
	}
	if !bytes.Equal(seqOut.Bytes(), page) {
		t.Fatal("sequential scan: decoded page differs from the original")
	}

	for _, workers := range []int{2, 3, 4, 16} {
		parCfg := cfg
		parCfg.Workers = workers
		var parOut bytes.Buffer
		s, err := New(buf, &parOut, parCfg)
		if err != nil {
			t.Fatalf("workers %d: New() error: %v", workers, err)
		}
		par, err := s.Run(context.Background())
		if err != nil {
			t.Fatalf("workers %d: Run() error: %v", workers, err)
		}
		if par.Pages != seq.Pages {
			t.Errorf("workers %d: Pages = %d, want %d", workers, par.Pages, seq.Pages)
		}
		if par.Resume != seq.Resume {
			t.Errorf("workers %d: Resume = %d, want %d", workers, par.Resume, seq.Resume)
		}
		if diff := cmp.Diff(seqOut.Bytes(), parOut.Bytes()); diff != "" {
			t.Errorf("workers %d: output mismatch (-sequential +parallel):\n%s", workers, diff)
		}
	}
}

func TestScanParallelWriteError(t *testing.T) {
	buf := parallelFixture()

	// Room for exactly one page; the failure surfaces on the second, and
	// its offset is the safe restart point.
	errSink := errors.New("sink failed")
	w := &testutil.BuggyWriter{W: io.Discard, N: 4097, Err: errSink}
	s, err := New(buf, w, Config{Workers: 4})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	st, err := s.Run(context.Background())
	if !errors.Is(err, errSink) {
		t.Fatalf("mismatching error: got %v, want %v", err, errSink)
	}
	if st.Pages != 1 {
		t.Errorf("mismatching Pages: got %d, want 1", st.Pages)
	}
	if st.Resume != 16000 {
		t.Errorf("mismatching Resume: got %d, want 16000", st.Resume)
	}
}

func TestScanParallelCancel(t *testing.T) {
	buf := parallelFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	s, err := New(buf, &out, Config{Workers: 4})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	_, err = s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("mismatching error: got %v, want %v", err, context.Canceled)
	}
}
