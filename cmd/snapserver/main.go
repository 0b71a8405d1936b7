package main

import (
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"htmlsnap/internal/browser"
	"htmlsnap/internal/server"
	"htmlsnap/snap"
)

func main() {
	addrFlag := flag.String("addr", ":8082", "listen address, e.g. :80 or 0.0.0.0:8082")
	static := flag.Bool("static", false, "load documents without a browser (SVG output only)")
	flag.Parse()

	addr := *addrFlag
	if env := os.Getenv("PORT"); env != "" {
		addr = ":" + env
	}
	if os.Getenv("SNAP_BROWSER") == "0" {
		*static = true
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stdout)

	cfg := server.DefaultConfig()
	cfg.Options.AllowFiles = false

	var (
		loader snap.FrameLoader
		raster snap.Rasterizer
		tabs   *browser.Loader
	)
	if !*static {
		b, err := browser.New(cfg.Logger, 0, cfg.Options.Viewport.Width, cfg.Options.Viewport.Height)
		if err != nil {
			log.Fatalf("browser: %v", err)
		}
		defer b.Close()
		tabs = browser.NewLoader(b, nil)
		loader, raster = tabs, b
	}
	handler := server.New(cfg, loader, raster)
	if tabs != nil {
		// blocked sheets go through the server's fetcher so site headers apply
		tabs.SetFallback(snap.NewStaticLoader(handler.Snapshotter().Fetcher(), cfg.Options))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          log.New(os.Stdout, "HTTPERR ", log.LstdFlags|log.Lmicroseconds),
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Listen error on %s: %v", addr, err)
	}

	log.Println("Listening on", addr)
	log.Fatal(srv.Serve(ln))
}
