package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SiteConfig holds per-host settings for resource requests, read from
// <SitesDir>/<host>.json.
type SiteConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
}

// siteHeaders resolves request headers for resource hosts. A host without its
// own file inherits the nearest parent domain's, so example.com.json also
// covers img.example.com. Lookups are remembered per host, misses included.
type siteHeaders struct {
	dir    string
	logger *log.Logger

	mu     sync.RWMutex
	byHost map[string]http.Header
}

func newSiteHeaders(dir string, logger *log.Logger) *siteHeaders {
	return &siteHeaders{dir: dir, logger: logger, byHost: make(map[string]http.Header)}
}

// For returns the headers configured for target's host, or nil.
func (s *siteHeaders) For(target string) http.Header {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	s.mu.RLock()
	hdr, ok := s.byHost[host]
	s.mu.RUnlock()
	if ok {
		return hdr
	}
	hdr = s.lookup(host)
	s.mu.Lock()
	s.byHost[host] = hdr
	s.mu.Unlock()
	return hdr
}

func (s *siteHeaders) lookup(host string) http.Header {
	for name := host; name != ""; {
		if cfg := s.read(name); cfg != nil {
			if len(cfg.Headers) == 0 {
				return nil
			}
			hdr := make(http.Header, len(cfg.Headers))
			for k, v := range cfg.Headers {
				hdr.Set(k, v)
			}
			return hdr
		}
		_, parent, found := strings.Cut(name, ".")
		if !found {
			break
		}
		name = parent
	}
	return nil
}

func (s *siteHeaders) read(name string) *SiteConfig {
	if s.dir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name+".json"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Printf("SITE read %s: %v", name, err)
		}
		return nil
	}
	var cfg SiteConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.logger.Printf("SITE bad config %s: %v", name, err)
		return nil
	}
	return &cfg
}
