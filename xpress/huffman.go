// Copyright 2018, Maxim Suhanov. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package xpress

// HuffmanDecoder decodes single blocks of the LZ77+Huffman variant.
// The zero value is ready to use. A decoder may be reused across any number
// of candidate windows; reuse only recycles its backing storage, the code
// table itself is rebuilt from each window's own length region.
//
// A HuffmanDecoder is not safe for concurrent use; scan workers each own one.
type HuffmanDecoder struct {
	prefix prefixDecoder
	lens   [numSymbols]uint8
	buf    [PageSize]byte
}

// Decompress attempts to decode one compressed block from the start of src.
// src extends to whatever input remains after the candidate offset; the
// decoder itself never reads past the bytes the block needs, and never past
// src. The returned Result.Data aliases the decoder's buffer.
//
// The code-length region must describe a fully subscribed canonical code,
// a deliberately stricter bar than the prefix layer itself needs. The
// store's encoder never emits less, and accepting incomplete codes would
// let the zero fill surrounding genuine blocks decode as single-symbol
// pages.
func (hd *HuffmanDecoder) Decompress(src []byte) Result {
	if len(src) < MinHuffmanSize {
		return Result{Failure: FailTableTooShort}
	}
	for i, b := range src[:huffTableBytes] {
		hd.lens[2*i] = b & 0xf
		hd.lens[2*i+1] = b >> 4
	}
	// The store's encoder always emits a fully subscribed code, so an
	// incomplete table is as bogus as an over-subscribed one. Without this
	// bar, the zero runs that surround genuine blocks in a capture decode
	// as single-symbol pages.
	if !hd.prefix.Init(&hd.lens) || !hd.prefix.complete {
		return Result{Failure: FailBadTable}
	}

	var br bitReader
	br.Init(src[huffTableBytes:])
	out := hd.buf[:0]
	for {
		sym, fail := hd.prefix.Decode(&br)
		if fail != FailNone {
			return Result{Failure: fail}
		}
		switch {
		case sym < endBlockSym:
			out = append(out, byte(sym))
		case sym == endBlockSym:
			return Result{Data: out, Consumed: huffTableBytes + br.BytesConsumed()}
		default:
			m := sym - endBlockSym // 1..255
			length := int(m&15) + minMatchLen
			if m&15 == 15 {
				b, ok := br.ReadBits(8)
				if !ok {
					return Result{Failure: FailTruncated}
				}
				if b < 255 {
					length = int(b) + 15 + minMatchLen
				} else {
					v, ok := br.ReadBits(16)
					if !ok {
						return Result{Failure: FailTruncated}
					}
					if v < 255+15 {
						// Escape used for a length the short
						// forms could encode.
						return Result{Failure: FailBadSymbol}
					}
					length = int(v) + minMatchLen
				}
			}
			distBits := m >> 4
			extra, ok := br.ReadBits(distBits)
			if !ok {
				return Result{Failure: FailTruncated}
			}
			dist := 1<<distBits + int(extra)

			// A copy may only reference output this block already
			// produced; blocks are compressed independently.
			if dist > len(out) {
				return Result{Failure: FailBadDistance}
			}
			if length > PageSize-len(out) {
				return Result{Failure: FailOverrun}
			}
			// Byte-at-a-time so that overlapping copies (dist <
			// length) replicate correctly.
			p := len(out) - dist
			for i := 0; i < length; i++ {
				out = append(out, out[p+i])
			}
		}
		if len(out) == PageSize {
			return Result{Data: out, Consumed: huffTableBytes + br.BytesConsumed()}
		}
	}
}
