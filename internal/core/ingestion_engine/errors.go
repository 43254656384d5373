package ingestion_engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExport marks a markdown export failure. The pipeline logs it and
// continues with empty text.
var ErrExport = errors.New("markdown export failed")

// UnsupportedFormatError is returned for extensions outside the supported set.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q: %s", e.Ext, e.Path)
}

// RenderError wraps a native renderer failure, e.g. malformed JSON.
type RenderError struct {
	Path string
	Ext  string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Attempt is one failed converter invocation strategy.
type Attempt struct {
	Strategy string
	Err      error
}

// ConversionError is returned when every invocation strategy failed.
type ConversionError struct {
	Path     string
	Attempts []Attempt
}

func (e *ConversionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "conversion failed for %q", e.Path)
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", a.Strategy, a.Err)
	}
	return b.String()
}

func (e *ConversionError) Unwrap() []error {
	out := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, a.Err)
	}
	return out
}
