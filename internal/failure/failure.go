// Package failure defines the error kinds raised by the download pipeline.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrResolution = errors.New("resolution failure")
	ErrFetch      = errors.New("fetch failure")
	ErrAssembly   = errors.New("assembly failure")
	ErrMux        = errors.New("mux failure")
)

// Error carries enough context to diagnose a failed stage and re-run safely.
type Error struct {
	// Kind is one of the Err* sentinels.
	Kind error
	// Index is the segment index for fetch failures, -1 otherwise.
	Index int
	URL   string
	Path  string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Index >= 0 {
		fmt.Fprintf(&b, ": segment %d", e.Index)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " url=%s", e.URL)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " path=%s", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Resolution wraps a manifest lookup or parse error.
func Resolution(url string, err error) error {
	return &Error{Kind: ErrResolution, Index: -1, URL: url, Err: err}
}

// Fetch wraps a segment download error.
func Fetch(index int, url, path string, err error) error {
	return &Error{Kind: ErrFetch, Index: index, URL: url, Path: path, Err: err}
}

// Assembly wraps an I/O error while combining segments.
func Assembly(path string, err error) error {
	return &Error{Kind: ErrAssembly, Index: -1, Path: path, Err: err}
}

// Mux wraps an external muxer failure.
func Mux(path string, err error) error {
	return &Error{Kind: ErrMux, Index: -1, Path: path, Err: err}
}

// Stage returns a short label for the first failure kind found in err,
// or "unknown".
func Stage(err error) string {
	switch {
	case errors.Is(err, ErrResolution):
		return "resolve"
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrAssembly):
		return "assemble"
	case errors.Is(err, ErrMux):
		return "mux"
	default:
		return "unknown"
	}
}
