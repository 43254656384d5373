package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"code.sajari.com/docconv"
	"github.com/gabriel-vasile/mimetype"

	"github.com/markdave123-py/docingest/internal/core"
	"github.com/markdave123-py/docingest/internal/core/metrics"
)

// ErrConverterUnavailable means the conversion engine could not be built.
// It aborts the whole batch.
var ErrConverterUnavailable = errors.New("conversion engine unavailable")

// Strategy is one way of asking an engine to convert a path.
type Strategy struct {
	Name   string
	Invoke func(ctx context.Context, eng core.ConversionEngine, path string) (*core.ConversionResult, error)
}

// DefaultStrategies are tried in order; the first success wins.
var DefaultStrategies = []Strategy{
	{Name: "path", Invoke: convertByPath},
	{Name: "input-factory", Invoke: convertByFactory},
	{Name: "input-hints", Invoke: convertByHints},
	{Name: "input-raw", Invoke: convertByRaw},
}

func convertByPath(ctx context.Context, eng core.ConversionEngine, path string) (*core.ConversionResult, error) {
	return eng.ConvertPath(ctx, path)
}

func convertByFactory(ctx context.Context, eng core.ConversionEngine, path string) (*core.ConversionResult, error) {
	in, err := core.NewInputDocumentFromPath(path)
	if err != nil {
		return nil, err
	}
	if in.ContentType == "" {
		return nil, fmt.Errorf("no content type for %q", Ext(path))
	}
	return eng.ConvertInput(ctx, in)
}

func convertByHints(ctx context.Context, eng core.ConversionEngine, path string) (*core.ConversionResult, error) {
	hints := candidateContentTypes(path)
	if len(hints) == 0 {
		return nil, fmt.Errorf("no content type candidates")
	}
	var errs []error
	for _, ct := range hints {
		res, err := eng.ConvertInput(ctx, &core.InputDocument{
			Path:        path,
			Name:        filepath.Base(path),
			ContentType: ct,
		})
		if err == nil {
			return res, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", ct, err))
	}
	return nil, errors.Join(errs...)
}

func convertByRaw(ctx context.Context, eng core.ConversionEngine, path string) (*core.ConversionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return eng.ConvertInput(ctx, &core.InputDocument{Name: filepath.Base(path), Data: data})
}

// candidateContentTypes lists sniffed and extension-derived content types,
// most specific first, without duplicates or the octet-stream catch-all.
func candidateContentTypes(path string) []string {
	var out []string
	add := func(ct string) {
		ct = stripParams(ct)
		if ct == "" || ct == "application/octet-stream" || slices.Contains(out, ct) {
			return
		}
		out = append(out, ct)
	}
	if m, err := mimetype.DetectFile(path); err == nil {
		for ; m != nil; m = m.Parent() {
			add(m.String())
		}
	}
	add(docconv.MimeTypeByExtension(path))
	add(mime.TypeByExtension(Ext(path)))
	return out
}

func stripParams(ct string) string {
	base, _, _ := strings.Cut(ct, ";")
	return strings.TrimSpace(strings.ToLower(base))
}

// ConvertWithFallback runs strategies against eng until one succeeds. When
// all fail the returned *ConversionError names path and carries every
// attempt's error. It also returns the winning strategy's name.
func ConvertWithFallback(ctx context.Context, eng core.ConversionEngine, path string, strategies []Strategy) (*core.ConversionResult, string, error) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	cerr := &ConversionError{Path: path}
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		res, err := invokeStrategy(ctx, s, eng, path)
		if err == nil && res != nil {
			return res, s.Name, nil
		}
		if err == nil {
			err = errors.New("empty result")
		}
		cerr.Attempts = append(cerr.Attempts, Attempt{Strategy: s.Name, Err: err})
	}
	return nil, "", cerr
}

func invokeStrategy(ctx context.Context, s Strategy, eng core.ConversionEngine, path string) (res *core.ConversionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Invoke(ctx, eng, path)
}

var defaultExportOptions = core.ExportOptions{PageTitles: true, PreserveLines: false, IncludeImages: false}

// ExportMarkdown extracts markdown from a conversion result, preferring the
// structured exporter, then ExportToMarkdown, then ToMarkdown, then fmt.Sprint.
// On failure it returns "" and an error wrapping ErrExport.
func ExportMarkdown(res *core.ConversionResult) (md string, err error) {
	defer func() {
		if r := recover(); r != nil {
			md, err = "", fmt.Errorf("%w: panic: %v", ErrExport, r)
		}
	}()
	if res == nil || res.Document == nil {
		return "", fmt.Errorf("%w: no document", ErrExport)
	}
	doc := res.Document

	if se, ok := doc.(core.StructuredExporter); ok {
		if out, serr := se.ExportMarkdown(defaultExportOptions); serr == nil {
			return out, nil
		}
	}
	switch d := doc.(type) {
	case core.MarkdownExporter:
		out, xerr := d.ExportToMarkdown()
		if xerr != nil {
			return "", fmt.Errorf("%w: %w", ErrExport, xerr)
		}
		return out, nil
	case core.MarkdownRenderer:
		return d.ToMarkdown(), nil
	default:
		return fmt.Sprint(doc), nil
	}
}

// engineHandle hands out an engine for a single conversion call. release
// must be called once the call returns.
type engineHandle interface {
	acquire(ctx context.Context) (eng core.ConversionEngine, release func(), err error)
}

// sharedEngine is built at most once and serializes every call on it.
type sharedEngine struct {
	factory core.EngineFactory
	stats   *metrics.Registry

	buildMu sync.Mutex
	eng     core.ConversionEngine

	useMu sync.Mutex
}

func (s *sharedEngine) get(ctx context.Context) (core.ConversionEngine, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	if s.eng != nil {
		return s.eng, nil
	}
	eng, err := buildEngine(ctx, s.factory, s.stats)
	if err != nil {
		return nil, err
	}
	s.eng = eng
	return eng, nil
}

func (s *sharedEngine) acquire(ctx context.Context) (core.ConversionEngine, func(), error) {
	eng, err := s.get(ctx)
	if err != nil {
		return nil, nil, err
	}
	s.useMu.Lock()
	return eng, s.useMu.Unlock, nil
}

// privateEngine belongs to one worker; it is built lazily and never shared.
type privateEngine struct {
	factory core.EngineFactory
	stats   *metrics.Registry
	eng     core.ConversionEngine
}

func (p *privateEngine) acquire(ctx context.Context) (core.ConversionEngine, func(), error) {
	if p.eng == nil {
		eng, err := buildEngine(ctx, p.factory, p.stats)
		if err != nil {
			return nil, nil, err
		}
		p.eng = eng
	}
	return p.eng, func() {}, nil
}

func buildEngine(ctx context.Context, factory core.EngineFactory, stats *metrics.Registry) (core.ConversionEngine, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: no engine factory", ErrConverterUnavailable)
	}
	start := time.Now()
	eng, err := factory(ctx)
	stats.AddDuration(metrics.StageConverterInit, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConverterUnavailable, err)
	}
	if eng == nil {
		return nil, fmt.Errorf("%w: factory returned nil", ErrConverterUnavailable)
	}
	return eng, nil
}
