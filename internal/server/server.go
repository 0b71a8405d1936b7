package server

import (
	"log"
	"net/http"
	"os"
	"strings"

	"htmlsnap/snap"
)

const defaultIndexHTML = `<!DOCTYPE html>
<html><body>
<h1>htmlsnap</h1>
<form action="/render" method="get">
<h3>Snapshot a URL</h3>
URL: <input name="url" size="60"><br>
Format: <select name="format"><option>png</option><option>svg</option></select><br>
<button type="submit">Render</button>
</form>
</body></html>`

const defaultSitesDir = "config/sites"

// maxMarkupBytes bounds POSTed documents.
const maxMarkupBytes = 4 << 20

// Config describes server wiring and runtime behaviour.
type Config struct {
	IndexHTML string
	SitesDir  string
	Logger    *log.Logger
	Options   snap.Options
}

// DefaultConfig populates configuration from environment variables.
func DefaultConfig() Config {
	cfg := Config{
		IndexHTML: defaultIndexHTML,
		Logger:    log.Default(),
		SitesDir:  strings.TrimSpace(os.Getenv("SNAP_SITES_DIR")),
		Options:   snap.DefaultOptions(),
	}
	if cfg.SitesDir == "" {
		cfg.SitesDir = defaultSitesDir
	}
	return cfg
}

// Server exposes the HTTP handlers rendering documents to images.
type Server struct {
	cfg     Config
	mux     *http.ServeMux
	handler http.Handler
	logger  *log.Logger
	sites   *siteHeaders
	snap    *snap.Snapshotter
}

// New wires a server. loader may be nil to use the static loader; raster may be
// nil, in which case only SVG output is available.
func New(cfg Config, loader snap.FrameLoader, raster snap.Rasterizer) *Server {
	if cfg.IndexHTML == "" {
		cfg.IndexHTML = defaultIndexHTML
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.SitesDir == "" {
		cfg.SitesDir = defaultSitesDir
	}
	sites := newSiteHeaders(cfg.SitesDir, cfg.Logger)
	opts := cfg.Options
	opts.Logger = cfg.Logger
	opts.HostHeaders = sites.For
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: cfg.Logger,
		sites:  sites,
		snap:   snap.New(opts, loader, raster),
	}
	s.registerRoutes()
	s.handler = withLogging(s.logger, s.mux)
	return s
}

// Snapshotter exposes the snapshotter so callers can share its fetcher.
func (s *Server) Snapshotter() *snap.Snapshotter { return s.snap }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/render", s.handleRender)
	s.mux.HandleFunc("/ping", s.handlePing)
}
