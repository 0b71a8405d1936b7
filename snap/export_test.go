package snap

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

type stubSource struct {
	calls int32
	snap  func() *Snapshot
}

func (s *stubSource) Acquire(context.Context) (*Snapshot, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.snap(), nil
}

type stubRaster struct {
	calls int32
	err   error
}

func (r *stubRaster) Rasterize(_ context.Context, svgURI string, w, h int) (image.Image, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.err != nil {
		return nil, r.err
	}
	if !strings.HasPrefix(svgURI, svgDataPrefix) {
		return nil, errors.New("not svg")
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	return img, nil
}

type stubFrame struct {
	err      error
	detached int32
}

func (f *stubFrame) Capture(context.Context) (*Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &Snapshot{Body: "<body></body>", Width: 10, Height: 10}, nil
}

func (f *stubFrame) Detach() error {
	atomic.AddInt32(&f.detached, 1)
	return nil
}

type stubLoader struct {
	frame Frame
	err   error
}

func (l stubLoader) Load(context.Context, string, string) (Frame, error) {
	return l.frame, l.err
}

func pageSnapshot(base string) func() *Snapshot {
	return func() *Snapshot {
		return &Snapshot{
			Stylesheets: []Stylesheet{{Rules: []Rule{PlainRule{Text: ".a{background:url(bg.png)}"}}}},
			Body:        `<body><div class="a"></div><img src="pic.png"></body>`,
			BaseHref:    base,
			Width:       300,
			Height:      150,
		}
	}
}

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	serve := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}
	mux.HandleFunc("/pic.png", serve)
	mux.HandleFunc("/bg.png", serve)
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><link rel="stylesheet" href="site.css"></head><body><img src="pic.png"></body></html>`))
	})
	mux.HandleFunc("/site.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.Write([]byte(`body{background:url(bg.png)}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestToVectorImageInlinesEverything(t *testing.T) {
	srv := newImageServer(t)
	s := New(quietOptions(), nil, nil)
	src := &stubSource{snap: pageSnapshot(srv.URL + "/")}

	uri, err := s.Renderer(src).ToVectorImage(context.Background())
	if err != nil {
		t.Fatalf("ToVectorImage: %v", err)
	}
	svg, err := DecodeVector(uri)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(svg, "pic.png") || strings.Contains(svg, "bg.png") {
		t.Fatalf("original references survived:\n%s", svg)
	}
	encoded := encodeDataURI("image/png", pngBytes)
	if strings.Count(svg, encoded) != 2 {
		t.Fatalf("expected both resources inlined:\n%s", svg)
	}
	if !strings.Contains(svg, "width='300' height='150'") {
		t.Fatalf("declared size missing:\n%s", svg)
	}
}

func TestFromRemoteFile(t *testing.T) {
	srv := newImageServer(t)
	s := New(quietOptions(), nil, nil)
	uri, err := s.FromRemoteFile(srv.URL + "/index.html").ToVectorImage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	svg, _ := DecodeVector(uri)
	if strings.Contains(svg, "pic.png") || strings.Contains(svg, "bg.png") {
		t.Fatalf("original references survived:\n%s", svg)
	}
	if !strings.Contains(svg, encodeDataURI("image/png", pngBytes)) {
		t.Fatalf("resource not inlined:\n%s", svg)
	}
}

func TestRendererReacquiresOnEveryCall(t *testing.T) {
	srv := newImageServer(t)
	raster := &stubRaster{}
	s := New(quietOptions(), nil, raster)
	src := &stubSource{snap: pageSnapshot(srv.URL + "/")}
	r := s.Renderer(src)
	ctx := context.Background()

	if _, err := r.ToVectorImage(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ToVectorImage(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ToEncodedRaster(ctx); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&src.calls); n != 3 {
		t.Fatalf("expected 3 acquisitions, got %d", n)
	}
	if n := atomic.LoadInt32(&raster.calls); n != 1 {
		t.Fatalf("expected 1 rasterization, got %d", n)
	}
}

func TestRasterForms(t *testing.T) {
	srv := newImageServer(t)
	s := New(quietOptions(), nil, &stubRaster{})
	r := s.Renderer(&stubSource{snap: pageSnapshot(srv.URL + "/")})
	ctx := context.Background()

	img, err := r.ToDecodedImage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 150 {
		t.Fatalf("decoded size = %v", b)
	}

	surface, err := r.ToDrawingSurface(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if b := surface.Bounds(); b.Dx() != 300 || b.Dy() != 150 {
		t.Fatalf("surface size = %v", b)
	}
	if got := surface.RGBAAt(10, 10); got.R != 200 || got.A != 255 {
		t.Fatalf("surface pixel = %v", got)
	}

	uri, err := r.ToEncodedRaster(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("unexpected raster uri prefix: %.40q", uri)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if b := decoded.Bounds(); b.Dx() != 300 || b.Dy() != 150 {
		t.Fatalf("png size = %v", b)
	}
}

func TestDrawingSurfaceMaxWidth(t *testing.T) {
	srv := newImageServer(t)
	opts := quietOptions()
	opts.MaxWidth = 100
	s := New(opts, nil, &stubRaster{})
	surface, err := s.Renderer(&stubSource{snap: pageSnapshot(srv.URL + "/")}).ToDrawingSurface(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if b := surface.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("scaled surface = %v", b)
	}
}

func TestDecodeFailures(t *testing.T) {
	srv := newImageServer(t)
	src := &stubSource{snap: pageSnapshot(srv.URL + "/")}
	var de *DecodeError

	_, err := New(quietOptions(), nil, &stubRaster{err: errors.New("broken")}).Renderer(src).ToEncodedRaster(context.Background())
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}

	_, err = New(quietOptions(), nil, nil).Renderer(src).ToDecodedImage(context.Background())
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError without rasterizer, got %v", err)
	}
}

func TestFetchFailureAbortsExport(t *testing.T) {
	srv := newImageServer(t)
	s := New(quietOptions(), nil, nil)
	src := &stubSource{snap: func() *Snapshot {
		snap := pageSnapshot(srv.URL + "/")()
		snap.Body = `<body><img src="gone.png"></body>`
		return snap
	}}
	uri, err := s.Renderer(src).ToVectorImage(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if uri != "" {
		t.Fatal("no output expected on failure")
	}
}

func TestMarkupSourceErrors(t *testing.T) {
	var le *LoadError

	s := New(quietOptions(), stubLoader{err: errors.New("boom")}, nil)
	if _, err := s.FromMarkup("<p>", "").ToVectorImage(context.Background()); !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %v", err)
	}

	frame := &stubFrame{err: errors.New("capture failed")}
	s = New(quietOptions(), stubLoader{frame: frame}, nil)
	if _, err := s.FromMarkup("<p>", "").ToVectorImage(context.Background()); !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if n := atomic.LoadInt32(&frame.detached); n != 1 {
		t.Fatalf("temporary frame detached %d times, want 1", n)
	}
}

func TestFromFrameDetachFlag(t *testing.T) {
	s := New(quietOptions(), nil, nil)
	ctx := context.Background()

	kept := &stubFrame{}
	if _, err := s.FromFrame(kept, false).ToVectorImage(ctx); err != nil {
		t.Fatal(err)
	}
	if kept.detached != 0 {
		t.Fatal("frame detached without being asked to")
	}

	dropped := &stubFrame{}
	if _, err := s.FromFrame(dropped, true).ToVectorImage(ctx); err != nil {
		t.Fatal(err)
	}
	if dropped.detached != 1 {
		t.Fatal("frame not detached")
	}
}

func TestInlineIgnoresScriptsAndText(t *testing.T) {
	srv := newImageServer(t)
	s := New(quietOptions(), nil, nil)
	src := &stubSource{snap: func() *Snapshot {
		return &Snapshot{
			Body: `<body><script>var s=document.createElement('script');s.src=cdn+'/a.js';</script>` +
				`<p>Write url(foo.png) in your stylesheet</p>` +
				`<div style="background: url('bg.png')"></div><img src="pic.png"></body>`,
			BaseHref: srv.URL + "/",
			Width:    50,
			Height:   50,
		}
	}}
	uri, err := s.Renderer(src).ToVectorImage(context.Background())
	if err != nil {
		t.Fatalf("ToVectorImage: %v", err)
	}
	svg, _ := DecodeVector(uri)
	if strings.Contains(svg, "<script") || strings.Contains(svg, "cdn+") {
		t.Fatalf("script survived:\n%s", svg)
	}
	if !strings.Contains(svg, "url(foo.png) in your stylesheet") {
		t.Fatalf("text content was altered:\n%s", svg)
	}
	if strings.Contains(svg, `"pic.png"`) || strings.Contains(svg, "bg.png") {
		t.Fatalf("references survived:\n%s", svg)
	}
}

func TestInlineKeepsSpacesInSrc(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.Path)
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	defer srv.Close()
	s := New(quietOptions(), nil, nil)
	src := &stubSource{snap: func() *Snapshot {
		return &Snapshot{Body: `<img src="my pic.png">`, BaseHref: srv.URL + "/", Width: 5, Height: 5}
	}}
	uri, err := s.Renderer(src).ToVectorImage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "/my pic.png" {
		t.Fatalf("requested %q", got)
	}
	svg, _ := DecodeVector(uri)
	if !strings.Contains(svg, `src="`+encodeDataURI("image/png", pngBytes)+`"`) {
		t.Fatalf("src not replaced:\n%s", svg)
	}
}
