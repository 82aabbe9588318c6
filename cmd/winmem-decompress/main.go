// Copyright 2018, Maxim Suhanov. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// winmem-decompress extracts compressed memory pages from page-aligned data:
// page files, crash dumps, raw memory dumps. The input container is not
// interpreted; every byte offset is a candidate. Decompressed pages are
// written back to back, 4096 bytes each, in the order they were found.
//
// Usage:
//	winmem-decompress [flags] <input file|->
//
// Inputs ending in .gz or .xz are decompressed transparently, so captures
// can stay compressed at rest. Expect false positives: the store's formats
// carry no checksum, so any window that decodes cleanly is kept.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	strconv "github.com/dsnet/golib/unitconv"
	kpgzip "github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/msuhanov/winmem-decompress/scan"
)

const version = "20181204"

func usage() {
	fmt.Fprintf(os.Stderr, "winmem-decompress, version: %s\n\n", version)
	fmt.Fprintf(os.Stderr, "This program tries to extract compressed memory pages from page-aligned data.\n")
	fmt.Fprintf(os.Stderr, "Every decompressed page is written to the output, 4096 bytes each.\n\n")
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <input file|->\n\n", os.Args[0])
	flag.PrintDefaults()
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "winmem-decompress: "+format+"\n", args...)
	os.Exit(1)
}

// parseSize accepts plain integers and SI/IEC suffixed values (64KiB, 1.5GB).
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParsePrefix(s, strconv.AutoParse)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func formatSize(n int64) string {
	return strconv.FormatPrefix(float64(n), strconv.Base1024, 2) + "B"
}

func main() {
	var (
		outPath   = flag.String("o", "-", "output `file` (- for stdout)")
		format    = flag.String("f", "huffman", "store variant: huffman or plain")
		startStr  = flag.String("start", "", "first candidate `offset` (size syntax allowed)")
		endStr    = flag.String("end", "", "stop candidate `offset` (size syntax allowed)")
		stride    = flag.Int("stride", 0, "advance after a rejected offset (default 1, or 16 for plain)")
		minOut    = flag.Int("min", 1024, "ignore pages that decompress to fewer `bytes`")
		skipZeros = flag.Int("skip-zeros", -1, "skip offsets starting with this many zero bytes (default 0, or 12 for plain)")
		workers   = flag.Int("workers", runtime.GOMAXPROCS(0), "concurrent scan workers")
		windowStr = flag.String("window", "32MiB", "streaming window `size`")
		gzOut     = flag.Bool("z", false, "gzip-compress the output")
		quiet     = flag.Bool("q", false, "suppress progress and summary")
	)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}

	cfg := scan.Config{
		Stride:     *stride,
		MinOutput:  *minOut,
		ZeroPrefix: *skipZeros,
		Workers:    *workers,
	}
	switch *format {
	case "huffman":
		cfg.Format = scan.Huffman
		if cfg.ZeroPrefix < 0 {
			cfg.ZeroPrefix = 0
		}
	case "plain":
		cfg.Format = scan.Plain
		// Store chunks are 16-byte aligned and padding is zero-filled;
		// these defaults are how the original tool kept the plain scan
		// usable.
		if cfg.Stride == 0 {
			cfg.Stride = 16
		}
		if cfg.ZeroPrefix < 0 {
			cfg.ZeroPrefix = 12
		}
	default:
		fatalf("unknown format: %s", *format)
	}
	var err error
	if cfg.Start, err = parseSize(*startStr); err != nil {
		fatalf("invalid -start: %v", err)
	}
	if cfg.End, err = parseSize(*endStr); err != nil {
		fatalf("invalid -end: %v", err)
	}
	if w, err := parseSize(*windowStr); err != nil {
		fatalf("invalid -window: %v", err)
	} else {
		cfg.Window = int(w)
	}

	input, closeInput, err := openInput(flag.Arg(0))
	if err != nil {
		fatalf("%v", err)
	}
	defer closeInput()

	output, finishOutput, err := openOutput(*outPath, *gzOut)
	if err != nil {
		fatalf("%v", err)
	}

	if !*quiet {
		last := time.Now()
		cfg.Progress = func(st scan.Stats) {
			if time.Since(last) < 2*time.Second {
				return
			}
			last = time.Now()
			fmt.Fprintf(os.Stderr, "scanned %s, %d pages found\n",
				formatSize(st.Resume), st.Pages)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	started := time.Now()
	st, scanErr := scan.ScanReader(ctx, input, output, cfg)
	if err := finishOutput(); err != nil && scanErr == nil {
		scanErr = err
	}
	elapsed := time.Since(started)

	if !*quiet {
		fmt.Fprintf(os.Stderr, "%d pages (%s) from %d candidates in %v\n",
			st.Pages, formatSize(st.Pages*4096), st.Offsets, elapsed.Round(time.Second))
	}
	if scanErr != nil {
		if errors.Is(scanErr, context.Canceled) {
			fatalf("interrupted; resume with -start %d", st.Resume)
		}
		fatalf("%v", scanErr)
	}
}

// openInput opens path (or stdin for "-"), transparently decompressing
// .gz and .xz captures.
func openInput(path string) (io.Reader, func(), error) {
	var f *os.File
	if path == "-" {
		f = os.Stdin
	} else {
		var err error
		if f, err = os.Open(path); err != nil {
			return nil, nil, err
		}
	}
	cleanup := func() { f.Close() }

	r := io.Reader(bufio.NewReaderSize(f, 1<<20))
	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := kpgzip.NewReader(r)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("opening %s: %v", path, err)
		}
		r = zr
	case strings.HasSuffix(path, ".xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("opening %s: %v", path, err)
		}
		r = xr
	}
	return r, cleanup, nil
}

// openOutput opens path (or stdout for "-"); the returned finish function
// flushes and closes everything and must be checked, since a scan is only
// complete when the last page hit the sink.
func openOutput(path string, gzOut bool) (io.Writer, func() error, error) {
	var f *os.File
	if path == "-" {
		f = os.Stdout
	} else {
		var err error
		if f, err = os.Create(path); err != nil {
			return nil, nil, err
		}
	}
	bw := bufio.NewWriterSize(f, 1<<20)
	w := io.Writer(bw)

	var zw *kpgzip.Writer
	if gzOut || strings.HasSuffix(path, ".gz") {
		zw = kpgzip.NewWriter(bw)
		w = zw
	}
	finish := func() error {
		if zw != nil {
			if err := zw.Close(); err != nil {
				return err
			}
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		if f != os.Stdout {
			return f.Close()
		}
		return nil
	}
	return w, finish, nil
}
