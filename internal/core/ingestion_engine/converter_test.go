package ingestion_engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docingest/internal/core"
	"github.com/markdave123-py/docingest/internal/core/metrics"
)

type structuredDoc struct {
	err  error
	seen core.ExportOptions
}

func (d *structuredDoc) ExportMarkdown(opts core.ExportOptions) (string, error) {
	d.seen = opts
	if d.err != nil {
		return "", d.err
	}
	return "structured", nil
}

func (d *structuredDoc) ExportToMarkdown() (string, error) { return "generic", nil }

type exporterDoc struct{ err error }

func (d exporterDoc) ExportToMarkdown() (string, error) { return "exported", d.err }

type panickyDoc struct{}

func (panickyDoc) ToMarkdown() string { panic("boom") }

type stringerDoc struct{}

func (stringerDoc) String() string { return "as string" }

func TestConvertWithFallback(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "report.pdf", "%PDF-1.4 body")

	t.Run("Should use the path strategy when it works", func(t *testing.T) {
		eng := &fakeEngine{}
		res, strategy, err := ConvertWithFallback(t.Context(), eng, path, nil)
		require.NoError(t, err)
		assert.Equal(t, "path", strategy)
		assert.Equal(t, markdownDoc("%PDF-1.4 body"), res.Document)
		assert.Zero(t, eng.inputCalls.Load())
	})

	t.Run("Should fall back to the input factory and stop there", func(t *testing.T) {
		eng := &fakeEngine{convertPathErr: errors.New("signature changed")}
		_, strategy, err := ConvertWithFallback(t.Context(), eng, path, nil)
		require.NoError(t, err)
		assert.Equal(t, "input-factory", strategy)
		require.Len(t, eng.inputs, 1)
		assert.Equal(t, "application/pdf", eng.inputs[0].ContentType)
		assert.Equal(t, path, eng.inputs[0].Path)
	})

	t.Run("Should report every attempt when all strategies fail", func(t *testing.T) {
		cause := errors.New("engine broken")
		eng := &fakeEngine{convertErr: cause}
		_, _, err := ConvertWithFallback(t.Context(), eng, path, nil)

		var cerr *ConversionError
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, path, cerr.Path)
		require.Len(t, cerr.Attempts, len(DefaultStrategies))
		assert.Equal(t, "path", cerr.Attempts[0].Strategy)
		assert.Equal(t, "input-raw", cerr.Attempts[3].Strategy)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), path)
	})

	t.Run("Should stop at the first strategy that succeeds and survive panics", func(t *testing.T) {
		var calls []string
		strategies := []Strategy{
			{Name: "first", Invoke: func(context.Context, core.ConversionEngine, string) (*core.ConversionResult, error) {
				calls = append(calls, "first")
				return nil, errors.New("nope")
			}},
			{Name: "second", Invoke: func(context.Context, core.ConversionEngine, string) (*core.ConversionResult, error) {
				calls = append(calls, "second")
				panic("engine panicked")
			}},
			{Name: "third", Invoke: func(context.Context, core.ConversionEngine, string) (*core.ConversionResult, error) {
				calls = append(calls, "third")
				return &core.ConversionResult{Document: "ok"}, nil
			}},
			{Name: "fourth", Invoke: func(context.Context, core.ConversionEngine, string) (*core.ConversionResult, error) {
				calls = append(calls, "fourth")
				return nil, nil
			}},
		}
		_, strategy, err := ConvertWithFallback(t.Context(), &fakeEngine{}, path, strategies)
		require.NoError(t, err)
		assert.Equal(t, "third", strategy)
		assert.Equal(t, []string{"first", "second", "third"}, calls)
	})

	t.Run("Should stop on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, _, err := ConvertWithFallback(ctx, &fakeEngine{}, path, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCandidateContentTypes(t *testing.T) {
	t.Run("Should include sniffed and extension types without duplicates", func(t *testing.T) {
		p := writeFile(t, t.TempDir(), "page.html", "<!DOCTYPE html><html><body><p>hi</p></body></html>")
		cts := candidateContentTypes(p)
		assert.Equal(t, "text/html", cts[0])
		assert.NotContains(t, cts, "application/octet-stream")
		seen := map[string]bool{}
		for _, ct := range cts {
			assert.False(t, seen[ct], ct)
			seen[ct] = true
		}
	})
}

func TestExportMarkdown(t *testing.T) {
	t.Run("Should prefer the structured exporter with page titles", func(t *testing.T) {
		doc := &structuredDoc{}
		md, err := ExportMarkdown(&core.ConversionResult{Document: doc})
		require.NoError(t, err)
		assert.Equal(t, "structured", md)
		assert.True(t, doc.seen.PageTitles)
		assert.False(t, doc.seen.IncludeImages)
	})

	t.Run("Should fall back when the structured export fails", func(t *testing.T) {
		md, err := ExportMarkdown(&core.ConversionResult{Document: &structuredDoc{err: errors.New("x")}})
		require.NoError(t, err)
		assert.Equal(t, "generic", md)
	})

	t.Run("Should use ExportToMarkdown and swallow its error", func(t *testing.T) {
		md, err := ExportMarkdown(&core.ConversionResult{Document: exporterDoc{}})
		require.NoError(t, err)
		assert.Equal(t, "exported", md)

		md, err = ExportMarkdown(&core.ConversionResult{Document: exporterDoc{err: errors.New("bad")}})
		assert.ErrorIs(t, err, ErrExport)
		assert.Empty(t, md)
	})

	t.Run("Should use ToMarkdown then stringify", func(t *testing.T) {
		md, _ := ExportMarkdown(&core.ConversionResult{Document: markdownDoc("plain")})
		assert.Equal(t, "plain", md)

		md, _ = ExportMarkdown(&core.ConversionResult{Document: stringerDoc{}})
		assert.Equal(t, "as string", md)
	})

	t.Run("Should turn panics and missing documents into empty text", func(t *testing.T) {
		md, err := ExportMarkdown(&core.ConversionResult{Document: panickyDoc{}})
		assert.ErrorIs(t, err, ErrExport)
		assert.Empty(t, md)

		md, err = ExportMarkdown(&core.ConversionResult{})
		assert.ErrorIs(t, err, ErrExport)
		assert.Empty(t, md)
	})
}

func TestSharedEngine(t *testing.T) {
	t.Run("Should build once under concurrent use and serialize calls", func(t *testing.T) {
		var builds atomic.Int32
		eng := &fakeEngine{}
		stats := metrics.NewRegistry()
		s := &sharedEngine{
			factory: func(context.Context) (core.ConversionEngine, error) {
				builds.Add(1)
				return eng, nil
			},
			stats: stats,
		}
		p := writeFile(t, t.TempDir(), "x.pdf", "data")

		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, release, err := s.acquire(t.Context())
				if !assert.NoError(t, err) {
					return
				}
				defer release()
				_, _ = got.ConvertPath(t.Context(), p)
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, builds.Load())
		assert.EqualValues(t, 16, eng.pathCalls.Load())
		assert.False(t, eng.overlapped.Load())
	})

	t.Run("Should wrap factory failures as systemic", func(t *testing.T) {
		s := &sharedEngine{
			factory: func(context.Context) (core.ConversionEngine, error) { return nil, errors.New("no models") },
			stats:   metrics.NewRegistry(),
		}
		_, _, err := s.acquire(t.Context())
		assert.ErrorIs(t, err, ErrConverterUnavailable)
	})
}
