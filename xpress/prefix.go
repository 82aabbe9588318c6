// Copyright 2018, Maxim Suhanov. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package xpress

const (
	prefixCountBits = 4 // chunk layout: sym<<4 | len
	prefixCountMask = (1 << prefixCountBits) - 1
	prefixChunkBits = 9 // first-level table width, tunable
)

// prefixDecoder maps canonical prefix codes to symbols via a first-level
// chunk table indexed by the top bits of the stream, with per-prefix link
// tables for codes longer than prefixChunkBits. Each chunk is sym<<4|len;
// a zero chunk means no assigned code has that prefix.
//
// A decoder is rebuilt from scratch for every candidate block (each block
// carries its own table); only the backing arrays are reused.
type prefixDecoder struct {
	chunks    []uint16   // first-level lookup map
	links     [][]uint16 // second-level lookup maps
	chunkBits uint       // bit-width of the chunks table
	maxBits   uint       // longest assigned code
	linkMask  uint       // mask the width of a link table
	complete  bool       // code space is exactly full
}

// Init builds the decoder from one 4-bit code length per symbol.
// It reports false when the lengths cannot form a canonical code: no symbol
// has a nonzero length, or the code space is over-subscribed at some length.
// Under-subscribed codes build; their unassigned prefixes decode as unknown.
func (pd *prefixDecoder) Init(lens *[numSymbols]uint8) bool {
	var bitCnts [maxPrefixBits + 1]uint
	minBits, maxBits := uint(maxPrefixBits+1), uint(0)
	for _, n := range lens {
		if n == 0 {
			continue
		}
		bitCnts[n]++
		if minBits > uint(n) {
			minBits = uint(n)
		}
		if maxBits < uint(n) {
			maxBits = uint(n)
		}
	}
	if maxBits == 0 {
		return false // no symbols at all
	}

	// Compute the first code of each length with the canonical doubling
	// rule, rejecting over-subscription as we go.
	var nextCodes [maxPrefixBits + 1]uint
	var code uint
	for i := minBits; i <= maxBits; i++ {
		code <<= 1
		nextCodes[i] = code
		code += bitCnts[i]
		if code > 1<<i {
			return false // over-subscribed
		}
	}
	pd.complete = code == 1<<maxBits
	pd.maxBits = maxBits

	pd.chunkBits = maxBits
	if pd.chunkBits > prefixChunkBits {
		pd.chunkBits = prefixChunkBits
	}
	pd.chunks = extendUint16s(pd.chunks, 1<<pd.chunkBits)
	for i := range pd.chunks {
		pd.chunks[i] = 0
	}
	pd.links = pd.links[:0]
	pd.linkMask = 1<<(maxBits-pd.chunkBits) - 1

	for sym, n := range lens {
		nb := uint(n)
		if nb == 0 {
			continue
		}
		code := nextCodes[nb]
		nextCodes[nb]++
		chunk := uint16(sym)<<prefixCountBits | uint16(nb)

		if nb <= pd.chunkBits {
			base := code << (pd.chunkBits - nb)
			for i := base; i < base+1<<(pd.chunkBits-nb); i++ {
				pd.chunks[i] = chunk
			}
			continue
		}

		// Long code: route through a link table, allocated the first
		// time its chunk prefix is seen. Prefix-freeness guarantees a
		// chunk entry is either empty or already a link marker.
		top := code >> (nb - pd.chunkBits)
		var linkIdx uint
		if pd.chunks[top] == 0 {
			linkIdx = uint(len(pd.links))
			pd.links = extendSliceUint16s(pd.links, len(pd.links)+1)
			pd.links[linkIdx] = extendUint16s(pd.links[linkIdx], int(pd.linkMask)+1)
			for i := range pd.links[linkIdx] {
				pd.links[linkIdx][i] = 0
			}
			pd.chunks[top] = uint16(linkIdx)<<prefixCountBits | uint16(pd.chunkBits+1)
		} else {
			linkIdx = uint(pd.chunks[top] >> prefixCountBits)
		}
		links := pd.links[linkIdx]
		sub := code & (1<<(nb-pd.chunkBits) - 1)
		base := sub << (maxBits - nb)
		for i := base; i < base+1<<(maxBits-nb); i++ {
			links[i] = chunk
		}
	}
	return true
}

// Decode reads the next prefix code from br and returns its symbol.
// FailBadSymbol means the bits match no assigned code; FailTruncated means
// the window ended before a full code.
func (pd *prefixDecoder) Decode(br *bitReader) (uint, Failure) {
	peek := br.PeekBits(maxPrefixBits)
	chunk := pd.chunks[peek>>(maxPrefixBits-pd.chunkBits)]
	nb := uint(chunk & prefixCountMask)
	if nb > pd.chunkBits {
		links := pd.links[chunk>>prefixCountBits]
		chunk = links[(peek>>(maxPrefixBits-pd.maxBits))&pd.linkMask]
		nb = uint(chunk & prefixCountMask)
	}
	if nb == 0 {
		if br.avail() < pd.maxBits {
			// Too few bits to rule out a longer code.
			return 0, FailTruncated
		}
		return 0, FailBadSymbol
	}
	if nb > br.avail() {
		return 0, FailTruncated
	}
	br.Skip(nb)
	return uint(chunk >> prefixCountBits), FailNone
}

// extendUint16s returns a slice with length n, reusing s if possible.
func extendUint16s(s []uint16, n int) []uint16 {
	if cap(s) >= n {
		return s[:n]
	}
	return append(s[:cap(s)], make([]uint16, n-cap(s))...)
}

// extendSliceUint16s returns a slice with length n, reusing s if possible.
func extendSliceUint16s(s [][]uint16, n int) [][]uint16 {
	if cap(s) >= n {
		return s[:n]
	}
	return append(s[:cap(s)], make([][]uint16, n-cap(s))...)
}
