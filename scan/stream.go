// Copyright 2018, Maxim Suhanov. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package scan

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/msuhanov/winmem-decompress/xpress"
)

// ScanReader scans a sequential input of unknown or unbounded size, holding
// only cfg.Window bytes in memory at a time. Successive windows overlap by
// one maximum encoded block, so a block straddling a window boundary is
// still found, and the accept/skip chain carries across windows: the result
// is byte-identical to scanning the whole input in memory.
//
// cfg.Start and cfg.End restrict candidate starts as in Scanner; bytes
// before Start are discarded without scanning. Workers apply within each
// window. Fatal input errors carry the stream offset reached.
func ScanReader(ctx context.Context, r io.Reader, w io.Writer, cfg Config) (Stats, error) {
	cfg, err := cfg.withDefaults(0, math.MaxInt64)
	if err != nil {
		return Stats{}, err
	}
	end := cfg.End

	base := cfg.Start
	if base > 0 {
		if _, err := io.CopyN(io.Discard, r, base); err != nil {
			if err == io.EOF {
				return Stats{Resume: base}, nil
			}
			return Stats{}, fmt.Errorf("scan: seeking input to offset %d: %w", base, err)
		}
	}

	buf := make([]byte, cfg.Window)
	filled := 0
	next := base
	var st Stats
	for {
		n, err := io.ReadFull(r, buf[filled:])
		filled += n
		eof := err == io.EOF || err == io.ErrUnexpectedEOF
		if err != nil && !eof {
			st.Resume = next
			return st, fmt.Errorf("scan: reading input at offset %d: %w", base+int64(filled), err)
		}

		// Candidates may start only where a full decode window is
		// buffered, except at end of input.
		limit := base + int64(filled) - xpress.MaxEncodedSize
		if eof {
			limit = base + int64(filled)
		}
		if limit > end {
			limit = end
		}
		if limit > next {
			inner := cfg
			inner.Start = next
			inner.End = limit
			inner.Progress = nil
			sc, err := newAt(buf[:filled], base, w, inner)
			if err != nil {
				return st, err
			}
			ist, err := sc.Run(ctx)
			st.add(ist)
			next = st.Resume
			if err != nil {
				return st, err
			}
			if cfg.Progress != nil {
				cfg.Progress(st)
			}
		}
		if eof || next >= end {
			st.Resume = next
			return st, nil
		}

		// Slide the buffer: everything before the next candidate is
		// done. The resume offset never trails the window tail by more
		// than the overlap, so progress is guaranteed. It can lead the
		// buffered data by up to a stride, when an accepted block ends
		// near the tail and the cursor rounds up to the grid.
		keep := int(next - base)
		if keep > filled {
			if _, err := io.CopyN(io.Discard, r, int64(keep-filled)); err != nil {
				if err == io.EOF {
					st.Resume = next
					return st, nil
				}
				return st, fmt.Errorf("scan: seeking input to offset %d: %w", next, err)
			}
			filled = 0
		} else {
			copy(buf, buf[keep:filled])
			filled -= keep
		}
		base = next
	}
}
