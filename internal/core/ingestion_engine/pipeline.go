package ingestion_engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docingest/internal/core"
	"github.com/markdave123-py/docingest/internal/core/metrics"
	"github.com/markdave123-py/docingest/internal/logger"
	"github.com/markdave123-py/docingest/internal/models"
)

// Mode selects how a batch is executed.
type Mode string

const (
	ModeEager    Mode = "eager"
	ModeStream   Mode = "stream"
	ModeParallel Mode = "parallel"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeEager, "":
		return ModeEager, true
	case ModeStream:
		return ModeStream, true
	case ModeParallel:
		return ModeParallel, true
	default:
		return "", false
	}
}

// Pipeline turns files into deduplicated, language-tagged chunks.
//
// stats:     shared statistics, safe for concurrent pipelines.
// native:    renderer for text and structured formats.
// factory:   builds conversion engines for everything else.
// shared:    engine used by eager and streaming runs; built once, serialized.
// detector:  language detector for tagging.
type Pipeline struct {
	stats      *metrics.Registry
	log        logger.Logger
	native     *NativeRenderer
	factory    core.EngineFactory
	shared     *sharedEngine
	detector   core.LanguageDetector
	strategies []Strategy
	docconv    DocconvConfig
}

type Option func(*Pipeline)

func WithStats(r *metrics.Registry) Option {
	return func(p *Pipeline) { p.stats = r }
}

func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithConverterFactory sets how engines are built. Parallel workers each
// build their own from it.
func WithConverterFactory(f core.EngineFactory) Option {
	return func(p *Pipeline) { p.factory = f }
}

// WithConverter installs a ready engine for eager and streaming runs.
func WithConverter(eng core.ConversionEngine) Option {
	return func(p *Pipeline) { p.shared = &sharedEngine{eng: eng} }
}

func WithLanguageDetector(d core.LanguageDetector) Option {
	return func(p *Pipeline) { p.detector = d }
}

func WithStrategies(s []Strategy) Option {
	return func(p *Pipeline) { p.strategies = s }
}

// WithDocconv configures the default docconv engine factory.
func WithDocconv(cfg DocconvConfig) Option {
	return func(p *Pipeline) { p.docconv = cfg }
}

func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		detector: WhatlangDetector{},
		docconv:  DocconvConfig{NativePDF: true},
	}
	for _, o := range opts {
		o(p)
	}
	if p.stats == nil {
		p.stats = metrics.NewRegistry()
	}
	if p.log == nil {
		p.log = logger.Nop()
	}
	if p.factory == nil {
		p.factory = DocconvFactory(p.docconv, p.log)
	}
	if p.shared == nil {
		p.shared = &sharedEngine{}
	}
	p.shared.factory = p.factory
	p.shared.stats = p.stats
	if len(p.strategies) == 0 {
		p.strategies = DefaultStrategies
	}
	p.native = NewNativeRenderer(p.stats)
	return p
}

func (p *Pipeline) Stats() *metrics.Registry { return p.stats }

// ConvertPaths processes paths one after another, then deduplicates and
// tags the whole batch.
func (p *Pipeline) ConvertPaths(ctx context.Context, paths []string, opt models.IngestOptions) ([]models.Chunk, error) {
	p.stats.Add(metrics.FilesTotal, int64(len(paths)))

	var out []models.Chunk
	collect := func(c models.Chunk) error {
		out = append(out, c)
		return nil
	}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.processFile(ctx, path, opt, p.shared, ModeEager, collect); err != nil {
			return nil, err
		}
	}
	out = p.finishBatch(out, opt)
	p.logSummary(ModeEager)
	return out, nil
}

// Stream emits each file's chunks as soon as they are cut. It performs no
// deduplication, and language is detected per file on its whole text.
// The channel is closed when the producer exits; errors surface from g.Wait.
func (p *Pipeline) Stream(ctx context.Context, g *errgroup.Group, paths []string, opt models.IngestOptions) <-chan models.Chunk {
	out := make(chan models.Chunk, 8)

	g.Go(func() error {
		defer close(out)
		p.stats.Add(metrics.FilesTotal, int64(len(paths)))

		send := func(c models.Chunk) error {
			select {
			case out <- c:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.processFile(ctx, path, opt, p.shared, ModeStream, send); err != nil {
				return err
			}
		}
		p.logSummary(ModeStream)
		return nil
	})

	return out
}

// ConvertPathsParallel spreads files over a fixed number of workers, each
// owning its own engine. Results are reassembled in input order before the
// batch dedupe and language pass. workers <= 1 is exactly ConvertPaths.
func (p *Pipeline) ConvertPathsParallel(ctx context.Context, paths []string, opt models.IngestOptions, workers int) ([]models.Chunk, error) {
	if workers <= 1 {
		return p.ConvertPaths(ctx, paths, opt)
	}
	p.log.Info("parallel conversion start", "workers", workers, "files", len(paths))
	p.stats.Add(metrics.FilesTotal, int64(len(paths)))

	results := make([][]models.Chunk, len(paths))
	idx := make(chan int)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(idx)
		for i := range paths {
			select {
			case idx <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < min(workers, len(paths)); w++ {
		g.Go(func() error {
			engines := &privateEngine{factory: p.factory, stats: p.stats}
			for i := range idx {
				if err := gctx.Err(); err != nil {
					return err
				}
				var local []models.Chunk
				err := p.processFile(gctx, paths[i], opt, engines, ModeParallel, func(c models.Chunk) error {
					local = append(local, c)
					return nil
				})
				if err != nil {
					return err
				}
				results[i] = local
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []models.Chunk
	for _, r := range results {
		out = append(out, r...)
	}
	out = p.finishBatch(out, opt)
	p.logSummary(ModeParallel)
	return out, nil
}

// fileTimes is the per-file breakdown reported in logs.
type fileTimes struct {
	native, convert, export, chunk time.Duration
}

// processFile classifies, renders, chunks and filters one file, handing each
// surviving chunk to emit. Per-file failures are logged and swallowed; the
// returned error is either from emit or systemic.
func (p *Pipeline) processFile(ctx context.Context, path string, opt models.IngestOptions, engines engineHandle, mode Mode, emit func(models.Chunk) error) error {
	ext := Ext(path)
	p.stats.IncExt(ext)

	format := Classify(path)
	if skip, why := Skip(format, opt.OCR); skip {
		p.log.Debug("skip file", "path", path, "reason", why)
		return nil
	}

	var (
		t    fileTimes
		md   string
		meta models.Meta
		err  error
	)
	route := "converter"
	if format.Native() {
		route = "native"
		start := time.Now()
		md, meta, err = p.native.Render(path)
		t.native = time.Since(start)
		if err != nil {
			p.log.Error("render failed", "path", path, "ext", ext, "stage", "native", "err", err)
			return nil
		}
		p.stats.Add(metrics.FilesNative, 1)
	} else {
		md, meta, err = p.convertFile(ctx, path, engines, &t)
		if err != nil {
			if errors.Is(err, ErrConverterUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.log.Error("conversion failed", "path", path, "ext", ext, "stage", "convert", "err", err)
			return nil
		}
		p.stats.Add(metrics.FilesViaConverter, 1)
	}

	var size int64
	if fi, serr := os.Stat(path); serr == nil {
		size = fi.Size()
	}
	p.stats.Add(metrics.BytesRead, size)

	lang := ""
	if mode == ModeStream && opt.LanguageDetect {
		stop := p.stats.Track(metrics.StageLanguageDetect)
		lang = detectLanguage(p.detector, md)
		stop()
	}

	count := 0
	var blocked time.Duration
	start := time.Now()
	for c := range Chunks(md, meta, opt) {
		if utf8.RuneCountInString(c.Text) < opt.MinChars {
			continue
		}
		if lang != "" {
			c.Meta.SetDefault(models.MetaLang, lang)
		}
		if opt.OCR {
			c.Meta.SetDefault(models.MetaOCR, "true")
		}
		sent := time.Now()
		err := emit(c)
		blocked += time.Since(sent)
		if err != nil {
			p.stats.AddDuration(metrics.StageChunking, time.Since(start)-blocked)
			p.stats.Add(metrics.ChunksTotal, int64(count))
			return err
		}
		count++
	}
	t.chunk = time.Since(start) - blocked
	p.stats.AddDuration(metrics.StageChunking, t.chunk)
	p.stats.Add(metrics.ChunksTotal, int64(count))

	p.log.Info("processed file",
		"file", filepath.Base(path),
		"ext", ext,
		"route", route,
		"pipeline", string(mode),
		"bytes", size,
		"chunks", count,
		"t_native", t.native.Seconds(),
		"t_convert", t.convert.Seconds(),
		"t_export", t.export.Seconds(),
		"t_chunk", t.chunk.Seconds(),
	)
	return nil
}

// convertFile runs the fallback chain and the markdown export. Conversion
// time is recorded only when a strategy succeeded.
func (p *Pipeline) convertFile(ctx context.Context, path string, engines engineHandle, t *fileTimes) (string, models.Meta, error) {
	eng, release, err := engines.acquire(ctx)
	if err != nil {
		return "", nil, err
	}
	start := time.Now()
	res, strategy, err := ConvertWithFallback(ctx, eng, path, p.strategies)
	t.convert = time.Since(start)
	release()
	if err != nil {
		return "", nil, err
	}
	p.stats.AddDuration(metrics.StageConvert, t.convert)
	p.log.Debug("converted", "path", path, "strategy", strategy)

	stop := p.stats.Track(metrics.StageExport)
	md, err := ExportMarkdown(res)
	t.export = stop()
	if err != nil {
		p.log.Debug("export produced no text", "path", path, "err", err)
	}

	meta := baseMeta(path)
	for _, k := range []string{"title", "Title"} {
		if v := res.Meta[k]; v != "" {
			meta.Set(models.MetaTitle, v)
			break
		}
	}
	return md, meta, nil
}

// finishBatch runs the batch-level dedupe and language pass.
func (p *Pipeline) finishBatch(chunks []models.Chunk, opt models.IngestOptions) []models.Chunk {
	if opt.Dedupe && len(chunks) > 0 {
		stop := p.stats.Track(metrics.StageDedupe)
		chunks = Dedupe(chunks)
		stop()
	}
	if opt.LanguageDetect && len(chunks) > 0 {
		stop := p.stats.Track(metrics.StageLanguageDetect)
		lang := detectLanguage(p.detector, languageSample(chunks))
		stop()
		tagLanguage(chunks, lang)
	}
	return chunks
}

func (p *Pipeline) logSummary(mode Mode) {
	s := p.stats.Snapshot()
	p.log.Info("ingest summary",
		"pipeline", string(mode),
		"files", s.FilesTotal,
		"converter", s.FilesViaConverter,
		"native", s.FilesNative,
		"chunks", s.ChunksTotal,
		"bytes", s.BytesRead,
		"t_init", s.TimeConverterInit,
		"t_convert", s.TimeConvert,
		"t_export", s.TimeExport,
		"t_native", s.TimeNativeIO,
		"t_chunk", s.TimeChunking,
		"t_dedupe", s.TimeDedupe,
		"t_lang", s.TimeLanguageDetect,
	)
	p.log.Debug("ext counts", "ext_counts", s.ExtCounts)
}
