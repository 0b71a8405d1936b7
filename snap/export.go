package snap

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"log"
	"math"
	"time"

	"golang.org/x/image/draw"
)

const pngDataPrefix = "data:image/png;base64,"

// Rasterizer decodes an SVG data URI into pixels.
type Rasterizer interface {
	Rasterize(ctx context.Context, svgURI string, width, height int) (image.Image, error)
}

// Snapshotter owns the collaborators shared by every export it starts. It holds
// no per-export state.
type Snapshotter struct {
	fetcher  *Fetcher
	loader   FrameLoader
	raster   Rasterizer
	maxWidth int
	logger   *log.Logger
	debug    bool
}

// New wires a Snapshotter. A nil loader falls back to StaticLoader.
func New(opts Options, loader FrameLoader, raster Rasterizer) *Snapshotter {
	opts = opts.withDefaults()
	f := NewFetcher(opts)
	if loader == nil {
		loader = NewStaticLoader(f, opts)
	}
	return &Snapshotter{
		fetcher:  f,
		loader:   loader,
		raster:   raster,
		maxWidth: opts.MaxWidth,
		logger:   opts.Logger,
		debug:    opts.Debug,
	}
}

// Fetcher exposes the fetcher used for resources and remote documents.
func (s *Snapshotter) Fetcher() *Fetcher { return s.fetcher }

// FromFrame exports an already loaded frame.
func (s *Snapshotter) FromFrame(frame Frame, detach bool) *Renderer {
	return s.Renderer(FrameSource{Frame: frame, Detach: detach})
}

// FromMarkup exports an HTML string; baseHref may be empty.
func (s *Snapshotter) FromMarkup(markup, baseHref string) *Renderer {
	return s.Renderer(MarkupSource{Loader: s.loader, Markup: markup, BaseHref: baseHref})
}

// FromRemoteFile exports the HTML document at url.
func (s *Snapshotter) FromRemoteFile(url string) *Renderer {
	return s.Renderer(RemoteFileSource{Fetcher: s.fetcher, Loader: s.loader, URL: url})
}

// Renderer binds any Source to this Snapshotter.
func (s *Snapshotter) Renderer(src Source) *Renderer {
	return &Renderer{src: src, s: s}
}

// Renderer exposes the four export forms of one source. Nothing is memoized:
// every call acquires the source again and runs the whole pipeline.
type Renderer struct {
	src Source
	s   *Snapshotter
}

// ToVectorImage returns the snapshot as an SVG data URI.
func (r *Renderer) ToVectorImage(ctx context.Context) (string, error) {
	svg, _, err := r.vector(ctx)
	return svg, err
}

// ToDecodedImage returns the rasterized vector image.
func (r *Renderer) ToDecodedImage(ctx context.Context) (image.Image, error) {
	return r.decoded(ctx)
}

// ToDrawingSurface returns a surface of the decoded image's natural size with
// the image drawn onto it.
func (r *Renderer) ToDrawingSurface(ctx context.Context) (*image.RGBA, error) {
	img, err := r.decoded(ctx)
	if err != nil {
		return nil, err
	}
	return drawSurface(img, r.s.maxWidth), nil
}

// ToEncodedRaster returns the drawing surface as a PNG data URI.
func (r *Renderer) ToEncodedRaster(ctx context.Context) (string, error) {
	surface, err := r.ToDrawingSurface(ctx)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, surface); err != nil {
		return "", err
	}
	return pngDataPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (r *Renderer) decoded(ctx context.Context) (image.Image, error) {
	svg, snap, err := r.vector(ctx)
	if err != nil {
		return nil, err
	}
	if r.s.raster == nil {
		return nil, &DecodeError{Err: errors.New("no rasterizer configured")}
	}
	img, err := r.s.raster.Rasterize(ctx, svg, snap.Width, snap.Height)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, &DecodeError{Err: err}
	}
	if img == nil || img.Bounds().Empty() {
		return nil, &DecodeError{Err: errors.New("empty image")}
	}
	return img, nil
}

func (r *Renderer) vector(ctx context.Context) (string, *Snapshot, error) {
	start := time.Now()
	snap, err := r.src.Acquire(ctx)
	if err != nil {
		return "", nil, err
	}
	svg, err := r.s.Inline(ctx, snap)
	if err != nil {
		r.s.logger.Printf("RENDER fail base=%s err=%v", snap.BaseHref, err)
		return "", nil, err
	}
	if r.s.debug {
		r.s.logger.Printf("RENDER ok base=%s size=%dx%d bytes=%d in %s", snap.BaseHref, snap.Width, snap.Height, len(svg), time.Since(start))
	}
	return svg, snap, nil
}

// Inline runs the resource inlining pipeline over snap and assembles the SVG
// data URI.
func (s *Snapshotter) Inline(ctx context.Context, snap *Snapshot) (string, error) {
	flat := Flatten(snap.Stylesheets)
	cssRes, err := s.fetcher.FetchAndEncodeAll(ctx, snap.BaseHref, flat.Refs)
	if err != nil {
		return "", err
	}
	css := SubstituteCSS(flat.Text, cssRes)

	body, bodyRefs, err := bodyResources(snap.Body)
	if err != nil {
		return "", &LoadError{Source: "body", Err: err}
	}
	targets := make([]string, len(bodyRefs))
	for i, ref := range bodyRefs {
		targets[i] = ref.target
	}
	bodyRes, err := s.fetcher.FetchAndEncodeAll(ctx, snap.BaseHref, targets)
	if err != nil {
		return "", err
	}
	for i := range bodyRes {
		bodyRes[i].URL = bodyRefs[i].literal
	}
	body = SubstituteMarkup(body, bodyRes)
	return Assemble(css, body, snap.Width, snap.Height)
}

func drawSurface(img image.Image, maxWidth int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxWidth > 0 && w > maxWidth {
		scaledH := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
		if scaledH < 1 {
			scaledH = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, scaledH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		return dst
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
