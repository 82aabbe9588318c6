// Copyright 2018, Maxim Suhanov. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package xpress

// bitReader reads bits from a bounded byte window in big-endian order:
// the MSB of each byte is the first bit of the stream. The next unread bit
// always sits in the top bit of bufBits. Running out of the window is an
// ordinary result, reported through boolean returns, since it only means the
// candidate block should be rejected.
type bitReader struct {
	src     []byte
	pos     int    // bytes fed into the bit buffer
	bufBits uint64 // buffered bits, MSB-aligned
	numBits uint   // number of valid bits in bufBits
}

func (br *bitReader) Init(src []byte) {
	*br = bitReader{src: src}
}

// feed loads whole bytes from the window into the bit buffer.
func (br *bitReader) feed() {
	for br.numBits <= 56 && br.pos < len(br.src) {
		br.bufBits |= uint64(br.src[br.pos]) << (56 - br.numBits)
		br.numBits += 8
		br.pos++
	}
}

// avail returns the number of unread bits left in the window.
func (br *bitReader) avail() uint {
	return br.numBits + 8*uint(len(br.src)-br.pos)
}

// ReadBits returns the next nb bits (nb <= 32), MSB first. It reports false
// without consuming anything when fewer than nb bits remain.
func (br *bitReader) ReadBits(nb uint) (uint, bool) {
	if br.numBits < nb {
		br.feed()
		if br.numBits < nb {
			return 0, false
		}
	}
	v := uint(br.bufBits >> (64 - nb))
	br.bufBits <<= nb
	br.numBits -= nb
	return v, true
}

// PeekBits returns the next nb bits without consuming them, zero-padded when
// fewer remain. Callers must bound the consumed length by avail.
func (br *bitReader) PeekBits(nb uint) uint {
	if br.numBits < nb {
		br.feed()
	}
	return uint(br.bufBits >> (64 - nb))
}

// Skip discards nb bits. Only valid for nb <= the bits made visible by the
// preceding PeekBits.
func (br *bitReader) Skip(nb uint) {
	br.bufBits <<= nb
	br.numBits -= nb
}

// BytesConsumed returns how many window bytes the consumed bits span,
// counting a partially consumed byte as consumed.
func (br *bitReader) BytesConsumed() int {
	return br.pos - int(br.numBits/8)
}
