package snap

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) htmlsnap/1.0 Safari/537.36"

// DefaultUserAgent is sent with resource requests unless a header overrides it.
const DefaultUserAgent = defaultUserAgent

// Viewport is the environment media conditions are evaluated against when no
// browser is available to do it.
type Viewport struct {
	Width  int
	Height int
	Dark   bool
}

// Options configure fetching and export.
type Options struct {
	Client           *http.Client
	Header           http.Header
	HostHeaders      func(target string) http.Header
	UserAgent        string
	FetchTimeout     time.Duration
	MaxResourceBytes int64
	AllowFiles       bool
	Viewport         Viewport
	// MaxWidth downscales the drawing surface when the decoded image is wider.
	MaxWidth int
	Logger   *log.Logger
	Debug    bool
}

// DefaultOptions populates options from SNAP_* environment variables.
func DefaultOptions() Options {
	o := Options{
		UserAgent:    strings.TrimSpace(os.Getenv("SNAP_USER_AGENT")),
		FetchTimeout: time.Duration(envInt("SNAP_FETCH_TIMEOUT_MS", 8000)) * time.Millisecond,
		Viewport: Viewport{
			Width:  envInt("SNAP_VIEWPORT_W", 1024),
			Height: envInt("SNAP_VIEWPORT_H", 768),
			Dark:   os.Getenv("SNAP_DARK") == "1",
		},
		MaxResourceBytes: int64(envInt("SNAP_MAX_RESOURCE_KB", 8192)) * 1024,
		AllowFiles:       os.Getenv("SNAP_ALLOW_FILES") == "1",
		MaxWidth:         envInt("SNAP_MAX_WIDTH", 0),
		Logger:           log.Default(),
		Debug:            os.Getenv("SNAP_DEBUG") == "1",
	}
	return o.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 8 * time.Second
	}
	if o.Viewport.Width <= 0 {
		o.Viewport.Width = 1024
	}
	if o.Viewport.Height <= 0 {
		o.Viewport.Height = 768
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

func envInt(name string, def int) int {
	if s := strings.TrimSpace(os.Getenv(name)); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			return v
		}
	}
	return def
}
