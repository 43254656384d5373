package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"code.sajari.com/docconv"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/docingest/internal/core"
	"github.com/markdave123-py/docingest/internal/logger"
)

var _ core.ConversionEngine = (*DocconvEngine)(nil)

// helperTools are the external binaries docconv shells out to.
var helperTools = []string{"pdftotext", "wvText", "unrtf", "tesseract"}

type DocconvConfig struct {
	UseReadability bool
	// NativePDF reads PDFs page by page in-process instead of via pdftotext.
	NativePDF bool
}

// DocconvEngine implements core.ConversionEngine using sajari/docconv, with
// an in-process page-aware PDF reader.
type DocconvEngine struct {
	cfg   DocconvConfig
	tools map[string]bool
	log   logger.Logger
}

func NewDocconvEngine(cfg DocconvConfig, log logger.Logger) *DocconvEngine {
	if log == nil {
		log = logger.Nop()
	}
	tools := make(map[string]bool, len(helperTools))
	kv := make([]any, 0, 2*len(helperTools)+4)
	for _, t := range helperTools {
		_, err := exec.LookPath(t)
		tools[t] = err == nil
		kv = append(kv, t, err == nil)
	}
	kv = append(kv, "native_pdf", cfg.NativePDF, "readability", cfg.UseReadability)
	log.Info("docconv engine initialized", kv...)
	return &DocconvEngine{cfg: cfg, tools: tools, log: log}
}

// DocconvFactory returns an EngineFactory building DocconvEngines.
func DocconvFactory(cfg DocconvConfig, log logger.Logger) core.EngineFactory {
	return func(ctx context.Context) (core.ConversionEngine, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewDocconvEngine(cfg, log), nil
	}
}

// Tools reports which helper binaries were found on PATH.
func (e *DocconvEngine) Tools() map[string]bool {
	out := make(map[string]bool, len(e.tools))
	for k, v := range e.tools {
		out[k] = v
	}
	return out
}

func (e *DocconvEngine) ConvertPath(ctx context.Context, path string) (*core.ConversionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.cfg.NativePDF && Ext(path) == ".pdf" {
		res, err := readPDF(path)
		if err == nil {
			return res, nil
		}
		e.log.Debug("native pdf read failed, using docconv", "path", path, "err", err)
	}
	resp, err := docconv.ConvertPath(path)
	if err != nil {
		return nil, fmt.Errorf("docconv: %w", err)
	}
	return responseResult(resp)
}

func (e *DocconvEngine) ConvertInput(ctx context.Context, in *core.InputDocument) (*core.ConversionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in == nil {
		return nil, fmt.Errorf("docconv: nil input")
	}
	data := in.Data
	if data == nil && in.Path != "" {
		b, err := os.ReadFile(in.Path)
		if err != nil {
			return nil, fmt.Errorf("docconv: read input: %w", err)
		}
		data = b
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("docconv: empty input")
	}
	ct := stripParams(in.ContentType)
	if ct == "" {
		ct = stripParams(mimetype.Detect(data).String())
	}

	resp, err := docconv.Convert(bytes.NewReader(data), ct, e.cfg.UseReadability)
	if err != nil {
		return nil, fmt.Errorf("docconv %s: %w", ct, err)
	}
	return responseResult(resp)
}

func responseResult(resp *docconv.Response) (*core.ConversionResult, error) {
	if resp == nil {
		return nil, fmt.Errorf("docconv: empty response")
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("docconv: %s", resp.Error)
	}
	return &core.ConversionResult{
		Document: textDocument(resp.Body),
		Meta:     resp.Meta,
	}, nil
}

// textDocument is the body docconv extracted.
type textDocument string

func (d textDocument) ExportToMarkdown() (string, error) { return string(d), nil }

// pagedDocument keeps page boundaries so exports can label them.
type pagedDocument struct {
	pages []string
}

func (d *pagedDocument) ExportMarkdown(opts core.ExportOptions) (string, error) {
	var b strings.Builder
	for i, p := range d.pages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if opts.PageTitles {
			fmt.Fprintf(&b, "Page %d\n", i+1)
		}
		if opts.PreserveLines {
			b.WriteString(p)
		} else {
			b.WriteString(joinWrappedLines(p))
		}
	}
	return b.String(), nil
}

func (d *pagedDocument) ExportToMarkdown() (string, error) {
	return d.ExportMarkdown(core.ExportOptions{PageTitles: true})
}

// joinWrappedLines joins hard-wrapped lines while keeping paragraph breaks.
func joinWrappedLines(s string) string {
	paras := strings.Split(s, "\n\n")
	for i, p := range paras {
		paras[i] = strings.Join(strings.Fields(p), " ")
	}
	return strings.Join(paras, "\n\n")
}

func readPDF(path string) (*core.ConversionResult, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n := r.NumPage()
	doc := &pagedDocument{pages: make([]string, n)}
	extracted := 0
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		doc.pages[i-1] = text
		extracted++
	}
	if n > 0 && extracted == 0 {
		return nil, fmt.Errorf("no extractable text in %d pages", n)
	}
	return &core.ConversionResult{
		Document: doc,
		Meta:     map[string]string{"pages": fmt.Sprint(n)},
	}, nil
}
