package ingestion_engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docingest/internal/core"
	"github.com/markdave123-py/docingest/internal/core/metrics"
	"github.com/markdave123-py/docingest/internal/models"
)

// markdownDoc is a converted document exposing only ToMarkdown.
type markdownDoc string

func (d markdownDoc) ToMarkdown() string { return string(d) }

// fakeEngine converts by reading the file as text. convertPathErr forces the
// path strategy to fail so fallbacks run.
type fakeEngine struct {
	convertPathErr error
	convertErr     error

	pathCalls  atomic.Int32
	inputCalls atomic.Int32
	inUse      atomic.Int32
	overlapped atomic.Bool

	mu     sync.Mutex
	inputs []*core.InputDocument
}

func (e *fakeEngine) enter() func() {
	if e.inUse.Add(1) > 1 {
		e.overlapped.Store(true)
	}
	return func() { e.inUse.Add(-1) }
}

func (e *fakeEngine) ConvertPath(_ context.Context, path string) (*core.ConversionResult, error) {
	defer e.enter()()
	e.pathCalls.Add(1)
	if e.convertPathErr != nil {
		return nil, e.convertPathErr
	}
	if e.convertErr != nil {
		return nil, e.convertErr
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &core.ConversionResult{Document: markdownDoc(b), Meta: map[string]string{}}, nil
}

func (e *fakeEngine) ConvertInput(_ context.Context, in *core.InputDocument) (*core.ConversionResult, error) {
	defer e.enter()()
	e.inputCalls.Add(1)
	e.mu.Lock()
	e.inputs = append(e.inputs, in)
	e.mu.Unlock()
	if e.convertErr != nil {
		return nil, e.convertErr
	}
	data := in.Data
	if data == nil {
		b, err := os.ReadFile(in.Path)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return &core.ConversionResult{Document: markdownDoc(data)}, nil
}

// countingFactory builds a fresh fakeEngine per call and remembers them.
type countingFactory struct {
	mu      sync.Mutex
	engines []*fakeEngine
	err     error
}

func (f *countingFactory) build(context.Context) (core.ConversionEngine, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &fakeEngine{}
	f.engines = append(f.engines, e)
	return e, nil
}

func (f *countingFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

// keywordDetector returns "fr" for text containing "bonjour", "en" otherwise.
type keywordDetector struct {
	calls atomic.Int32
}

func (d *keywordDetector) Detect(text string) (string, error) {
	d.calls.Add(1)
	if strings.Contains(strings.ToLower(text), "bonjour") {
		return "fr", nil
	}
	return "en", nil
}

type failingDetector struct{ panics bool }

func (d failingDetector) Detect(string) (string, error) {
	if d.panics {
		panic("detector exploded")
	}
	return "", errors.New("no idea")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, *metrics.Registry, *countingFactory) {
	t.Helper()
	stats := metrics.NewRegistry()
	factory := &countingFactory{}
	base := []Option{
		WithStats(stats),
		WithConverterFactory(factory.build),
		WithLanguageDetector(&keywordDetector{}),
	}
	return NewPipeline(append(base, opts...)...), stats, factory
}

func testOptions() models.IngestOptions {
	opt := models.DefaultIngestOptions()
	opt.Overlap = 0
	opt.MinChars = 1
	return opt
}

func texts(chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
