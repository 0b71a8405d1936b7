package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"htmlsnap/internal/browser"
	"htmlsnap/snap"
)

func main() {
	urlFlag := flag.String("url", "", "remote HTML document to snapshot")
	fileFlag := flag.String("file", "", "local HTML file to snapshot")
	baseFlag := flag.String("base", "", "base href for -file (defaults to the file's directory)")
	format := flag.String("format", "png", "output format: svg or png")
	out := flag.String("out", "", "output file (default stdout)")
	datauri := flag.Bool("datauri", false, "write the data URI instead of decoded bytes")
	static := flag.Bool("static", false, "load without a browser (svg only)")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stderr)

	if (*urlFlag == "") == (*fileFlag == "") {
		log.Fatal("exactly one of -url or -file is required")
	}
	if *format != "svg" && *format != "png" {
		log.Fatalf("unsupported format %q", *format)
	}
	if *static && *format == "png" {
		log.Fatal("-static only supports -format svg")
	}

	opts := snap.DefaultOptions()
	opts.AllowFiles = *fileFlag != ""

	var (
		loader snap.FrameLoader
		raster snap.Rasterizer
		tabs   *browser.Loader
	)
	if !*static {
		b, err := browser.New(opts.Logger, 0, opts.Viewport.Width, opts.Viewport.Height)
		if err != nil {
			log.Fatalf("browser: %v", err)
		}
		defer b.Close()
		tabs = browser.NewLoader(b, nil)
		loader, raster = tabs, b
	}
	s := snap.New(opts, loader, raster)
	if tabs != nil {
		tabs.SetFallback(snap.NewStaticLoader(s.Fetcher(), opts))
	}

	var r *snap.Renderer
	if *urlFlag != "" {
		r = s.FromRemoteFile(*urlFlag)
	} else {
		data, err := os.ReadFile(*fileFlag)
		if err != nil {
			log.Fatal(err)
		}
		base := *baseFlag
		if base == "" {
			abs, err := filepath.Abs(*fileFlag)
			if err != nil {
				log.Fatal(err)
			}
			base = "file://" + filepath.ToSlash(abs)
		}
		r = s.FromMarkup(string(data), base)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var uri string
	var err error
	if *format == "svg" {
		uri, err = r.ToVectorImage(ctx)
	} else {
		uri, err = r.ToEncodedRaster(ctx)
	}
	if err != nil {
		log.Fatalf("render: %v", err)
	}

	payload := []byte(uri)
	if !*datauri {
		payload, err = decodeDataURI(uri)
		if err != nil {
			log.Fatal(err)
		}
	}
	if *out == "" {
		os.Stdout.Write(payload)
		return
	}
	if err := os.WriteFile(*out, payload, 0o644); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s (%d bytes)", *out, len(payload))
}

func decodeDataURI(uri string) ([]byte, error) {
	_, data, ok := strings.Cut(uri, ";base64,")
	if !ok {
		return nil, fmt.Errorf("unexpected data uri")
	}
	return base64.StdEncoding.DecodeString(data)
}
