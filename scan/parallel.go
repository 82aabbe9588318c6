// Copyright 2018, Maxim Suhanov. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package scan

import (
	"context"
	"fmt"
	"sync"
)

// The scan is embarrassingly parallel: every candidate decode reads only the
// shared input and writes private state. Workers take contiguous offset
// partitions and may read up to one maximum encoded block past their
// partition end, so blocks straddling a boundary decode in full. Partition
// sizes are a multiple of the stride, keeping every worker on the one
// candidate grid a sequential scan walks. Only the merge stage writes; it
// consumes partitions in offset order and replays the sequential accept/skip
// rule, which keeps the output byte-identical to a single-threaded scan.

// hit is one accepted candidate produced by a worker.
type hit struct {
	off      int64
	consumed int
	data     []byte // private copy, at most one page
}

func (s *Scanner) runParallel(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := int64(s.cfg.Workers)
	stride := int64(s.cfg.Stride)
	span := s.cfg.End - s.cfg.Start
	chunk := (span + n - 1) / n
	chunk = (chunk + stride - 1) / stride * stride

	hits := make([]chan hit, s.cfg.Workers)
	stats := make([]Stats, s.cfg.Workers)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		lo := s.cfg.Start + int64(i)*chunk
		hi := clamp(lo+chunk, s.cfg.End)
		if lo > hi {
			// Stride rounding can push trailing partitions past End;
			// they scan nothing and must not inflate Resume.
			lo = hi
		}
		ch := make(chan hit, 64)
		hits[i] = ch
		wg.Add(1)
		go func(lo, hi int64, ch chan<- hit, st *Stats) {
			defer wg.Done()
			defer close(ch)
			s.scanPartition(ctx, lo, hi, ch, st)
		}(lo, hi, ch, &stats[i])
	}

	// Merge: partitions arrive pre-sorted, so consuming the channels in
	// partition order yields strictly increasing offsets.
	var st Stats
	var werr error
	nextValid := s.cfg.Start
	for _, ch := range hits {
		for h := range ch {
			if werr != nil || h.off < nextValid {
				// Inside a block that was already accepted (or
				// draining after a failure): the sequential
				// scan would never have attempted this offset.
				continue
			}
			if err := s.pw.emit(h.data); err != nil {
				werr = fmt.Errorf("scan: writing page found at offset %d: %w", h.off, err)
				nextValid = h.off
				cancel() // stop the workers, then drain
				continue
			}
			st.Pages++
			nextValid = h.off + int64(h.consumed)
		}
	}
	wg.Wait()

	for i := range stats {
		stats[i].Pages = 0 // counted at the merge
		st.add(stats[i])
	}
	if werr != nil {
		st.Resume = nextValid
		return st, werr
	}
	if err := ctx.Err(); err != nil {
		// A canceled worker may have stopped anywhere in its
		// partition; the last merged offset is the safe restart point.
		st.Resume = s.gridUp(nextValid)
		return st, fmt.Errorf("scan: canceled at offset %d: %w", st.Resume, err)
	}
	if nv := s.gridUp(nextValid); nv > st.Resume {
		st.Resume = nv
	}
	return st, nil
}

// scanPartition attempts every strided offset in [lo, hi), forwarding
// accepted blocks. It does not apply the consumed skip; the merge stage
// decides which hits survive, so workers stay independent of each other's
// results.
func (s *Scanner) scanPartition(ctx context.Context, lo, hi int64, out chan<- hit, st *Stats) {
	dec := newDecoder(s.cfg.Format)
	off := lo
	for ; off < hi; off += int64(s.cfg.Stride) {
		if st.Offsets&1023 == 0 && ctx.Err() != nil {
			return
		}
		window := s.window(off)
		if s.cfg.skipZeros(window) {
			st.Skipped++
			continue
		}
		st.Offsets++
		r := dec.Decompress(window)
		if !s.cfg.accept(r) {
			st.Rejects[r.Failure]++
			continue
		}
		h := hit{off: off, consumed: r.Consumed, data: append([]byte(nil), r.Data...)}
		select {
		case out <- h:
		case <-ctx.Done():
			return
		}
	}
	// The first grid offset past the partition, so the aggregate Resume
	// matches a sequential scan even when End is off the grid.
	st.Resume = off
}
