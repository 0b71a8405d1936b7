package snap

import (
	"context"
	"errors"
)

// Snapshot is the raw input of one export: the document's stylesheets and body
// markup, the base href relative references resolve against and the scroll size
// captured at acquisition.
type Snapshot struct {
	Stylesheets []Stylesheet
	Body        string
	BaseHref    string
	Width       int
	Height      int
}

// Frame is a loaded document the host can read a Snapshot from.
type Frame interface {
	Capture(ctx context.Context) (*Snapshot, error)
	Detach() error
}

// FrameLoader loads markup into a fresh Frame. baseHref, when set, is the
// context relative URLs in the markup resolve against.
type FrameLoader interface {
	Load(ctx context.Context, markup, baseHref string) (Frame, error)
}

// Source acquires a Snapshot. Every call acquires anew.
type Source interface {
	Acquire(ctx context.Context) (*Snapshot, error)
}

// FrameSource reads an already loaded frame, optionally detaching it afterwards.
type FrameSource struct {
	Frame  Frame
	Detach bool
}

func (s FrameSource) Acquire(ctx context.Context) (*Snapshot, error) {
	if s.Frame == nil {
		return nil, &LoadError{Source: "frame", Err: errors.New("nil frame")}
	}
	return captureFrame(ctx, "frame", s.Frame, s.Detach)
}

// MarkupSource loads an HTML string into a temporary frame that is always
// detached once captured, whether or not capture succeeded.
type MarkupSource struct {
	Loader   FrameLoader
	Markup   string
	BaseHref string
}

func (s MarkupSource) Acquire(ctx context.Context) (*Snapshot, error) {
	if s.Loader == nil {
		return nil, &LoadError{Source: "markup", Err: errors.New("no frame loader")}
	}
	frame, err := s.Loader.Load(ctx, s.Markup, s.BaseHref)
	if err != nil {
		return nil, asLoadError("markup", err)
	}
	return captureFrame(ctx, "markup", frame, true)
}

// RemoteFileSource downloads an HTML document and loads it like MarkupSource
// with the document URL as base href.
type RemoteFileSource struct {
	Fetcher *Fetcher
	Loader  FrameLoader
	URL     string
}

func (s RemoteFileSource) Acquire(ctx context.Context) (*Snapshot, error) {
	text, err := s.Fetcher.FetchText(ctx, s.URL, "text/html,application/xhtml+xml,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	return MarkupSource{Loader: s.Loader, Markup: text, BaseHref: s.URL}.Acquire(ctx)
}

func captureFrame(ctx context.Context, name string, f Frame, detach bool) (snap *Snapshot, err error) {
	if detach {
		defer func() {
			if derr := f.Detach(); derr != nil && err == nil {
				snap, err = nil, asLoadError(name, derr)
			}
		}()
	}
	snap, err = f.Capture(ctx)
	if err != nil {
		return nil, asLoadError(name, err)
	}
	return snap, nil
}

func asLoadError(name string, err error) error {
	var le *LoadError
	var fe *FetchError
	var ee *EncodeError
	if errors.As(err, &le) || errors.As(err, &fe) || errors.As(err, &ee) {
		return err
	}
	return &LoadError{Source: name, Err: err}
}
