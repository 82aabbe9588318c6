// Copyright 2018, Maxim Suhanov. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package xpress implements the compression formats used by the Windows
// memory-compression store: LZ77 with canonical Huffman coding, and the
// plain LZ77 variant.
//
// The decoders are built for carving, not for trusted streams: a block may
// start at any byte of a capture, so decode is attempted on windows that are
// usually garbage. All format violations are reported as Result values, never
// as errors or panics, and no decode ever reads outside the window it was
// given or loops without consuming input.
package xpress

const (
	// PageSize is the unit of output. Every block decodes to at most one
	// page; short blocks are padded by the caller.
	PageSize = 4096

	// MinHuffmanSize is the smallest window worth attempting for the
	// Huffman variant: the code-length table plus a minimal payload.
	MinHuffmanSize = 512

	// MaxEncodedSize bounds the compressed bytes a single block can span.
	// The worst case is a page of literals under 15-bit codes plus the
	// table, under 8 KiB; callers use this to size window overlap.
	MaxEncodedSize = 8192

	minMatchLen = 3

	// Huffman variant symbol space: 256 literals, the end-of-block symbol,
	// and 255 match codes.
	numSymbols     = 512
	endBlockSym    = 256
	huffTableBytes = numSymbols / 2 // 4-bit code lengths, two per byte
	maxPrefixBits  = 15
)

// Failure classifies why a candidate block was rejected. Failures are
// expected outcomes of decoding at a wrong offset and are consumed as
// ordinary control flow by the scanner.
type Failure uint8

const (
	FailNone          Failure = iota
	FailTableTooShort         // window too short to hold a code-length table
	FailBadTable              // code lengths do not form a usable canonical code
	FailBadSymbol             // bits match no assigned code, or a malformed escape
	FailBadDistance           // match reaches before the start of the block
	FailTruncated             // window ran out mid-block
	FailOverrun               // output would exceed one page

	// FailureCount is the number of Failure kinds, for aggregate counters.
	FailureCount = int(FailOverrun) + 1
)

var failureNames = [FailureCount]string{
	"none", "table too short", "bad table", "bad symbol",
	"bad distance", "truncated", "overrun",
}

func (f Failure) String() string {
	if int(f) < len(failureNames) {
		return failureNames[f]
	}
	return "unknown"
}

// Result is the outcome of decoding one candidate block.
//
// On success Data holds the decoded bytes (at most PageSize) and Consumed the
// number of compressed bytes the block spanned. Data aliases storage owned by
// the decoder and is only valid until its next Decompress call.
type Result struct {
	Data     []byte
	Consumed int
	Failure  Failure
}

// Ok reports whether the block decoded without a structural violation.
func (r Result) Ok() bool { return r.Failure == FailNone }
