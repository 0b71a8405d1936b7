package snap

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// InlineResource pairs a reference, exactly as it appeared in the source text,
// with the data URI that replaces it.
type InlineResource struct {
	URL     string
	Encoded string
}

// Fetcher retrieves resources and converts them into data URIs. It keeps no
// results between calls; only requests that are in flight at the same moment
// are shared. A shared request is cancelled once every caller waiting on it
// has gone.
type Fetcher struct {
	client   *http.Client
	header   http.Header
	hostHdr  func(target string) http.Header
	maxBytes int64
	logger   *log.Logger
	debug    bool
	inflight singleflight.Group

	mu      sync.Mutex
	waiters map[string]*sharedFetch
}

type sharedFetch struct {
	ctx    context.Context
	cancel context.CancelFunc
	count  int
}

// NewFetcher builds a fetcher from opts.
func NewFetcher(opts Options) *Fetcher {
	opts = opts.withDefaults()
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.FetchTimeout}
		if opts.AllowFiles {
			tr := http.DefaultTransport.(*http.Transport).Clone()
			tr.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
			client.Transport = tr
		}
	}
	hdr := cloneHeader(opts.Header)
	if hdr.Get("User-Agent") == "" {
		hdr.Set("User-Agent", opts.UserAgent)
	}
	return &Fetcher{
		client:   client,
		header:   hdr,
		hostHdr:  opts.HostHeaders,
		maxBytes: opts.MaxResourceBytes,
		logger:   opts.Logger,
		debug:    opts.Debug,
		waiters:  make(map[string]*sharedFetch),
	}
}

// FetchAndEncode resolves ref against base, downloads it and returns its data URI
// form. References that need no network access are returned unchanged.
func (f *Fetcher) FetchAndEncode(ctx context.Context, base, ref string) (InlineResource, error) {
	if passthroughRef(ref) {
		return InlineResource{URL: ref, Encoded: ref}, nil
	}
	abs := resolveAbsURL(base, ref)
	if abs == "" {
		return InlineResource{}, &FetchError{URL: ref, Err: errors.New("unresolvable reference")}
	}
	shared := f.join(ctx, abs)
	ch := f.inflight.DoChan(abs, func() (interface{}, error) {
		return f.fetch(shared.ctx, abs)
	})
	select {
	case <-ctx.Done():
		f.leave(abs, shared)
		return InlineResource{}, &FetchError{URL: abs, Err: ctx.Err()}
	case res := <-ch:
		f.leave(abs, shared)
		if res.Err != nil {
			return InlineResource{}, res.Err
		}
		return InlineResource{URL: ref, Encoded: res.Val.(string)}, nil
	}
}

// join registers a caller for the request to abs. The request's context
// outlives whichever caller started it and ends when the last caller leaves.
func (f *Fetcher) join(ctx context.Context, abs string) *sharedFetch {
	f.mu.Lock()
	defer f.mu.Unlock()
	sf, ok := f.waiters[abs]
	if !ok {
		sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		sf = &sharedFetch{ctx: sctx, cancel: cancel}
		f.waiters[abs] = sf
	}
	sf.count++
	return sf
}

func (f *Fetcher) leave(abs string, sf *sharedFetch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sf.count--
	if sf.count > 0 {
		return
	}
	sf.cancel()
	if f.waiters[abs] == sf {
		delete(f.waiters, abs)
		// later callers must start a new request, not join the cancelled one
		f.inflight.Forget(abs)
	}
}

// FetchAndEncodeAll fetches every reference concurrently. The first failure
// cancels the remaining requests and is returned alone; no partial list is
// produced.
func (f *Fetcher) FetchAndEncodeAll(ctx context.Context, base string, refs []string) ([]InlineResource, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out := make([]InlineResource, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			r, err := f.FetchAndEncode(gctx, base, ref)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchText downloads target as text; used for remote documents and imported
// stylesheets.
func (f *Fetcher) FetchText(ctx context.Context, target, accept string) (string, error) {
	body, _, err := f.get(ctx, target, accept)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (f *Fetcher) fetch(ctx context.Context, abs string) (string, error) {
	body, ctype, err := f.get(ctx, abs, "*/*")
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", &EncodeError{URL: abs, Err: errors.New("empty payload")}
	}
	encoded := encodeDataURI(mediaTypeFor(ctype, abs, body), body)
	if f.debug {
		f.logger.Printf("FETCH ok url=%s bytes=%d", abs, len(body))
	}
	return encoded, nil
}

func (f *Fetcher) get(ctx context.Context, target, accept string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", &FetchError{URL: target, Err: err}
	}
	copyHeader(req.Header, f.header)
	if f.hostHdr != nil {
		for k, vs := range f.hostHdr(target) {
			req.Header.Del(k)
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if f.debug {
			f.logger.Printf("FETCH fail url=%s err=%v", target, err)
		}
		return nil, "", &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &FetchError{URL: target, Status: resp.StatusCode}
	}
	var r io.Reader = resp.Body
	if f.maxBytes > 0 {
		r = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, "", &EncodeError{URL: target, Err: err}
	}
	body, err := decodeContent(resp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		return nil, "", &EncodeError{URL: target, Err: err}
	}
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		return nil, "", &EncodeError{URL: target, Err: fmt.Errorf("payload exceeds %d bytes", f.maxBytes)}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// decodeContent undoes a Content-Encoding the transport left in place, which
// happens whenever Accept-Encoding was set explicitly.
func decodeContent(encoding string, raw []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	case "deflate":
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			return io.ReadAll(zr)
		}
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		return io.ReadAll(fr)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func encodeDataURI(mediaType string, payload []byte) string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mediaType) + base64.StdEncoding.EncodedLen(len(payload)))
	b.WriteString("data:")
	b.WriteString(mediaType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(payload))
	return b.String()
}

func mediaTypeFor(contentType, target string, body []byte) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if u, err := url.Parse(target); err == nil {
		if mt, _, err := mime.ParseMediaType(mime.TypeByExtension(path.Ext(u.Path))); err == nil && mt != "" {
			return mt
		}
	}
	mt := mimetype.Detect(body).String()
	if i := strings.IndexByte(mt, ';'); i != -1 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

func passthroughRef(ref string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	return lower == "" ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "#") ||
		strings.HasPrefix(lower, "about:")
}

func resolveAbsURL(base, href string) string {
	hu, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == "" {
		if hu.Scheme == "" {
			return ""
		}
		return hu.String()
	}
	bu, err := url.Parse(base)
	if err != nil {
		return ""
	}
	abs := bu.ResolveReference(hu)
	if abs.Scheme == "" {
		return ""
	}
	return abs.String()
}

func cloneHeader(h http.Header) http.Header {
	out := http.Header{}
	copyHeader(out, h)
	return out
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
