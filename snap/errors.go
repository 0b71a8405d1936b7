package snap

import (
	"errors"
	"fmt"
)

// ErrDetached is returned when a frame is read after it has been detached.
var ErrDetached = errors.New("snap: frame detached")

// FetchError reports a resource that could not be retrieved.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// EncodeError reports a retrieved payload that could not be turned into a data URI.
type EncodeError struct {
	URL string
	Err error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("encode %s: %v", e.URL, e.Err) }

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError reports an assembled vector image the rasterizer could not decode.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode vector image: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// LoadError reports source markup that failed to load into a frame.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %s: %v", e.Source, e.Err) }

func (e *LoadError) Unwrap() error { return e.Err }
