// Copyright 2018, Maxim Suhanov. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package xpress

import "encoding/binary"

const (
	hashBits = 15
	hashSize = 1 << hashBits
	maxChain = 32 // match search depth, speed versus ratio
)

// CompressPlain compresses src with the plain LZ77 variant, producing a
// stream PlainDecoder accepts. It exists for building fixtures and for
// verifying captures round-trip; ratio is secondary to correctness.
func CompressPlain(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}

	// Hash chains over 3-byte seeds; only matches within the 13-bit
	// window are usable.
	head := make([]int, hashSize)
	next := make([]int, len(src))
	for i := range head {
		head[i] = -1
	}

	hash3 := func(i int) int {
		h := uint32(src[i])<<16 ^ uint32(src[i+1])<<8 ^ uint32(src[i+2])
		h ^= h >> 7
		h *= 0x9e3779b1
		return int(h >> (32 - hashBits))
	}
	update := func(i int) {
		if i+2 >= len(src) {
			return
		}
		h := hash3(i)
		next[i] = head[h]
		head[h] = i
	}
	findBest := func(pos int) (bestOff, bestLen int) {
		if pos+2 >= len(src) {
			return 0, 0
		}
		for c, depth := head[hash3(pos)], 0; c >= 0 && depth < maxChain; c, depth = next[c], depth+1 {
			dist := pos - c
			if dist <= 0 || dist > plainWindowSize {
				break // chain entries only get older
			}
			if src[c] != src[pos] || src[c+1] != src[pos+1] || src[c+2] != src[pos+2] {
				continue
			}
			l := 3
			for pos+l < len(src) && src[c+l] == src[pos+l] {
				l++
			}
			if l > bestLen {
				bestOff, bestLen = dist, l
			}
		}
		return bestOff, bestLen
	}

	dst := make([]byte, 4, len(src)+4) // flag word placeholder
	flagPos := 0
	var flags uint32
	flagCount := 0
	nibblePos := -1

	flushFlags := func(final bool) {
		if final {
			// Pad the last flag word with ones; the decoder reads
			// them as end-of-block at input exhaustion.
			shift := uint(32 - flagCount)
			flags = flags<<shift | (1<<shift - 1)
		}
		binary.LittleEndian.PutUint32(dst[flagPos:], flags)
		flags, flagCount = 0, 0
		if !final {
			flagPos = len(dst)
			dst = append(dst, 0, 0, 0, 0)
		}
	}
	writeMatch := func(off, length int) {
		ml := length - minMatchLen
		tokLen := ml
		if tokLen > 7 {
			tokLen = 7
		}
		tok := uint16((off-1)<<3 | tokLen)
		dst = append(dst, byte(tok), byte(tok>>8))
		if ml < 7 {
			return
		}
		extra := ml - 7
		nib := extra
		if nib > 15 {
			nib = 15
		}
		if nibblePos < 0 {
			nibblePos = len(dst)
			dst = append(dst, byte(nib))
		} else {
			dst[nibblePos] |= byte(nib << 4)
			nibblePos = -1
		}
		if extra < 15 {
			return
		}
		extra -= 15
		if extra < 255 {
			dst = append(dst, byte(extra))
			return
		}
		dst = append(dst, 0xff)
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], uint16(ml))
		dst = append(dst, tmp[:]...)
	}

	for i := 0; i < len(src); {
		if flagCount == 32 {
			flushFlags(false)
		}
		off, length := findBest(i)
		if length >= minMatchLen {
			// Cap so the extended length always fits in 16 bits.
			if length > 1<<16-1-minMatchLen {
				length = 1<<16 - 1 - minMatchLen
			}
			flags = flags<<1 | 1
			flagCount++
			writeMatch(off, length)
			for k := 0; k < length && i < len(src); k++ {
				update(i)
				i++
			}
		} else {
			flags <<= 1
			flagCount++
			dst = append(dst, src[i])
			update(i)
			i++
		}
	}
	flushFlags(true)
	return dst
}
