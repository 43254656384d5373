package core

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// InputDocument describes a document handed to a conversion engine by
// content rather than by path. Path, ContentType and Data are all optional;
// engines use whatever they can.
type InputDocument struct {
	Path        string
	Name        string
	ContentType string
	Data        []byte
}

// NewInputDocumentFromPath builds an InputDocument whose content type is
// derived from the file extension.
func NewInputDocumentFromPath(path string) (*InputDocument, error) {
	if path == "" {
		return nil, fmt.Errorf("input document: empty path")
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	return &InputDocument{
		Path:        path,
		Name:        filepath.Base(path),
		ContentType: ct,
	}, nil
}

// ConversionResult wraps whatever the engine produced. Document is inspected
// for the export interfaces below.
type ConversionResult struct {
	Document any
	Meta     map[string]string
}

// ConversionEngine turns complex formats (PDF, office documents, images)
// into a document that can be exported to markdown. Implementations may be
// expensive to build and are not required to be safe for concurrent use.
type ConversionEngine interface {
	ConvertPath(ctx context.Context, path string) (*ConversionResult, error)
	ConvertInput(ctx context.Context, in *InputDocument) (*ConversionResult, error)
}

// EngineFactory builds a fresh ConversionEngine.
type EngineFactory func(ctx context.Context) (ConversionEngine, error)

type ExportOptions struct {
	PageTitles    bool
	PreserveLines bool
	IncludeImages bool
}

// StructuredExporter is the preferred export contract.
type StructuredExporter interface {
	ExportMarkdown(opts ExportOptions) (string, error)
}

// MarkdownExporter is the generic export contract.
type MarkdownExporter interface {
	ExportToMarkdown() (string, error)
}

// MarkdownRenderer is the minimal export contract.
type MarkdownRenderer interface {
	ToMarkdown() string
}

// LanguageDetector returns an ISO language code for text, or "" when unsure.
type LanguageDetector interface {
	Detect(text string) (string, error)
}
