// Copyright 2018, Maxim Suhanov. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package scan

import (
	"io"

	"github.com/msuhanov/winmem-decompress/xpress"
)

// pageWriter normalizes accepted blocks to exactly one page each and writes
// them to the sink: short blocks are zero-padded, and each page is a single
// Write with no framing. Consumers locate pages purely by their 4096-byte
// spacing, so a write failure is fatal; nothing is retried.
type pageWriter struct {
	w    io.Writer
	page [xpress.PageSize]byte
}

func (pw *pageWriter) emit(data []byte) error {
	n := copy(pw.page[:], data)
	clear(pw.page[n:])
	_, err := pw.w.Write(pw.page[:])
	return err
}
