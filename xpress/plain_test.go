// Copyright 2018, Maxim Suhanov. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package xpress

import (
	"bytes"
	"testing"

	"github.com/msuhanov/winmem-decompress/internal/testutil"
)

func TestPlainDecoder(t *testing.T) {
	dh := testutil.MustDecodeHex
	vectors := []struct {
		desc     string
		input    []byte
		output   []byte
		consumed int
		fail     Failure
	}{{
		desc:  "empty window",
		input: dh(""),
		fail:  FailTruncated,
	}, {
		desc:  "window below one flag word and a literal",
		input: dh("00000000"),
		fail:  FailTruncated,
	}, {
		desc: "all literals",
		// The flag word pads its tail with ones, so exhausting the
		// input on a match flag ends the block cleanly.
		input:    append(dh("3f000000"), []byte("abcdefghijklmnopqrstuvwxyz")...),
		output:   []byte("abcdefghijklmnopqrstuvwxyz"),
		consumed: 30,
	}, {
		desc:     "long match with the full escape chain",
		input:    dh("ffffff1f" + "616263" + "1700" + "0f" + "ff" + "2601"),
		output:   bytes.Repeat([]byte("abc"), 100),
		consumed: 13,
	}, {
		desc:     "short match",
		input:    dh("ffffff27" + "6162" + "0800" + "6364"),
		output:   []byte("ababacd"),
		consumed: 10,
	}, {
		desc:  "match before any output",
		input: dh("00000080" + "0800" + "0000"),
		fail:  FailBadDistance,
	}, {
		desc:  "window ending inside a literal run",
		input: dh("00000000" + "6162"),
		fail:  FailTruncated,
	}, {
		desc:  "window ending inside a token",
		input: dh("ffffff3f" + "6162" + "08"),
		fail:  FailTruncated,
	}, {
		desc:  "window ending inside a flag word",
		input: dh("00000000" + "61616161616161616161616161616161" +
			"61616161616161616161616161616161" + "ffff"),
		fail: FailTruncated,
	}, {
		desc:  "word escape encoding a short length",
		input: dh("ffffff3f" + "6161" + "0f00" + "0f" + "ff" + "1000"),
		fail:  FailBadSymbol,
	}}

	pd := new(PlainDecoder)
	for i, v := range vectors {
		r := pd.Decompress(v.input)
		if r.Failure != v.fail {
			t.Errorf("test %d, %s: failure mismatch: got %v, want %v", i, v.desc, r.Failure, v.fail)
			continue
		}
		if v.fail != FailNone {
			continue
		}
		if !bytes.Equal(r.Data, v.output) {
			t.Errorf("test %d, %s: output mismatch:\ngot  %q\nwant %q", i, v.desc, r.Data, v.output)
		}
		if r.Consumed != v.consumed {
			t.Errorf("test %d, %s: consumed mismatch: got %d, want %d", i, v.desc, r.Consumed, v.consumed)
		}
	}
}

func TestPlainDecoderClamp(t *testing.T) {
	// A match reaching past one page is cut at the page boundary and ends
	// the block; page files interleave blocks without length framing, so
	// the overshoot belongs to whatever comes next.
	input := testutil.MustDecodeHex("ffffff7f" + "61" + "0700" + "0f" + "ff" + "ffff")
	pd := new(PlainDecoder)
	r := pd.Decompress(input)
	if !r.Ok() {
		t.Fatalf("unexpected failure: %v", r.Failure)
	}
	if !bytes.Equal(r.Data, bytes.Repeat([]byte("a"), PageSize)) {
		t.Fatalf("output mismatch: got %d bytes", len(r.Data))
	}
	if r.Consumed != len(input) {
		t.Fatalf("consumed mismatch: got %d, want %d", r.Consumed, len(input))
	}
}

func TestPlainRoundTrip(t *testing.T) {
	rand := testutil.NewRand(7)
	vectors := []struct {
		desc  string
		input []byte
	}{
		{"single byte", []byte("x")},
		{"no matches", []byte("abcdefghijklmnopqrstuvwxyz")},
		{"short period", bytes.Repeat([]byte("abc"), 100)},
		{"one byte run", bytes.Repeat([]byte("A"), PageSize)},
		{"text with repeats", bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 100)[:PageSize]},
		{"incompressible", rand.Bytes(1000)},
		{"nibble sharing", append(bytes.Repeat([]byte("0123456789abcdef"), 2), bytes.Repeat([]byte("fedcba9876543210"), 2)...)},
	}

	pd := new(PlainDecoder)
	for i, v := range vectors {
		comp := CompressPlain(v.input)
		r := pd.Decompress(comp)
		if !r.Ok() {
			t.Errorf("test %d, %s: unexpected failure: %v", i, v.desc, r.Failure)
			continue
		}
		if !bytes.Equal(r.Data, v.input) {
			t.Errorf("test %d, %s: round trip mismatch: got %d bytes, want %d bytes", i, v.desc, len(r.Data), len(v.input))
		}
		if r.Consumed != len(comp) {
			t.Errorf("test %d, %s: consumed mismatch: got %d, want %d", i, v.desc, r.Consumed, len(comp))
		}
	}
}
