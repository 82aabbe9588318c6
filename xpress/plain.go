// Copyright 2018, Maxim Suhanov. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package xpress

import "encoding/binary"

// The plain LZ77 variant interleaves little-endian 32-bit flag words with
// literals and 16-bit match tokens (13-bit offset-1, 3-bit length with the
// saturating escape chain: shared 4-bit nibble, extra byte, 16-bit total).
// This is the variant the Windows 8.1/10 store uses for resident compressed
// pages, and the one the compressed store writes in 16-byte-aligned chunks.

const (
	plainWindowSize = 8192 // 13-bit match offset

	// minPlainSize is the smallest window worth attempting: one flag word
	// and at least one literal.
	minPlainSize = 5
)

// PlainDecoder decodes single blocks of the plain LZ77 variant.
// The zero value is ready to use; not safe for concurrent use.
type PlainDecoder struct {
	buf [PageSize]byte
}

// Decompress attempts to decode one compressed block from the start of src.
// Output is clamped at one page: a match running past PageSize ends the
// block successfully with the page full, since anything beyond it belongs to
// the next block or is garbage. Clean exhaustion of src at a token boundary
// also ends the block. The returned Result.Data aliases the decoder's buffer.
func (pd *PlainDecoder) Decompress(src []byte) Result {
	if len(src) < minPlainSize {
		return Result{Failure: FailTruncated}
	}
	out := pd.buf[:0]
	pos := 0
	var flags uint32
	flagCount := 0

	// The 4-bit length escapes of two matches share one byte; the second
	// escape reads the high nibble of the byte the first one claimed.
	nibblePos := -1

	done := func() Result {
		return Result{Data: out, Consumed: pos}
	}
	for {
		if flagCount == 0 {
			if pos == len(src) {
				return done()
			}
			if pos+4 > len(src) {
				return Result{Failure: FailTruncated}
			}
			flags = binary.LittleEndian.Uint32(src[pos:])
			pos += 4
			flagCount = 32
		}
		flagCount--
		if flags&(1<<uint(flagCount)) == 0 {
			// Literal.
			if pos == len(src) {
				return Result{Failure: FailTruncated}
			}
			out = append(out, src[pos])
			pos++
			if len(out) == PageSize {
				return done()
			}
			continue
		}

		// Compressors pad the final flag word with ones, so a match
		// flag at the exact end of input marks the end of the block.
		if pos == len(src) {
			return done()
		}
		if pos+2 > len(src) {
			return Result{Failure: FailTruncated}
		}
		tok := binary.LittleEndian.Uint16(src[pos:])
		pos += 2
		length := int(tok & 7)
		dist := int(tok>>3) + 1

		if length == 7 {
			var nib int
			if nibblePos < 0 {
				if pos == len(src) {
					return Result{Failure: FailTruncated}
				}
				nibblePos = pos
				nib = int(src[pos] & 0xf)
				pos++
			} else {
				nib = int(src[nibblePos] >> 4)
				nibblePos = -1
			}
			if nib < 15 {
				length = nib + 7
			} else {
				if pos == len(src) {
					return Result{Failure: FailTruncated}
				}
				b := src[pos]
				pos++
				if b < 255 {
					length = int(b) + 15 + 7
				} else {
					if pos+2 > len(src) {
						return Result{Failure: FailTruncated}
					}
					v := binary.LittleEndian.Uint16(src[pos:])
					pos += 2
					if v < 15+7 {
						return Result{Failure: FailBadSymbol}
					}
					length = int(v)
				}
			}
		}
		length += minMatchLen

		if dist > len(out) {
			return Result{Failure: FailBadDistance}
		}
		if length > PageSize-len(out) {
			length = PageSize - len(out)
		}
		p := len(out) - dist
		for i := 0; i < length; i++ {
			out = append(out, out[p+i])
		}
		if len(out) == PageSize {
			return done()
		}
	}
}
