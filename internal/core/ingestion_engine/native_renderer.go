package ingestion_engine

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/markdave123-py/docingest/internal/core/metrics"
	"github.com/markdave123-py/docingest/internal/models"
)

const (
	jsonlLineCap = 500
	csvRowCap    = 500
	emptyCSV     = "# CSV (empty)\n"
	docHeading   = "# Document\n"
)

// Width 0 disables single-line arrays so every element gets its own line.
var jsonPretty = &pretty.Options{Width: 0, Indent: "  "}

// NativeRenderer turns text-like and structured files into markdown without
// the conversion engine.
type NativeRenderer struct {
	stats *metrics.Registry
}

func NewNativeRenderer(stats *metrics.Registry) *NativeRenderer {
	return &NativeRenderer{stats: stats}
}

// Render reads path and returns its markdown plus the base metadata.
// Elapsed time is charged to the native IO timer whether or not it succeeds.
func (r *NativeRenderer) Render(path string) (string, models.Meta, error) {
	defer r.stats.Track(metrics.StageNativeIO)()

	ext := Ext(path)
	meta := baseMeta(path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", meta, &RenderError{Path: path, Ext: ext, Err: err}
	}
	text := strings.ToValidUTF8(string(raw), "")

	var md string
	switch ext {
	case ".txt":
		md = renderPlainText(text)
	case ".md", ".mdx":
		md = text
	case ".json":
		md, err = renderJSON(text)
	case ".jsonl":
		md = renderJSONLines(text)
	case ".csv":
		md, err = renderCSV(text)
	default:
		err = &UnsupportedFormatError{Path: path, Ext: ext}
	}
	if err != nil {
		var unsupported *UnsupportedFormatError
		if errors.As(err, &unsupported) {
			return "", meta, err
		}
		return "", meta, &RenderError{Path: path, Ext: ext, Err: err}
	}
	return md, meta, nil
}

// baseMeta is the provenance every chunk of a file starts with.
func baseMeta(path string) models.Meta {
	src := path
	if abs, err := filepath.Abs(path); err == nil {
		src = abs
	}
	return models.NewMeta(
		models.MetaSource, src,
		models.MetaFilename, filepath.Base(path),
		models.MetaExt, Ext(path),
	)
}

func renderPlainText(text string) string {
	if strings.HasPrefix(strings.TrimLeftFunc(text, unicode.IsSpace), "# ") {
		return text
	}
	return docHeading + text
}

func renderJSON(text string) (string, error) {
	if !gjson.Valid(text) {
		return "", fmt.Errorf("invalid json")
	}
	body := strings.TrimRight(string(pretty.PrettyOptions([]byte(strings.TrimSpace(text)), jsonPretty)), "\n")
	return "```json\n" + body + "\n```", nil
}

func renderJSONLines(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > jsonlLineCap {
		lines = lines[:jsonlLineCap]
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if gjson.Valid(line) {
			out = append(out, string(pretty.Ugly([]byte(line))))
			continue
		}
		out = append(out, line)
	}
	return "# JSON Lines\n" + strings.Join(out, "\n")
}

func renderCSV(text string) (string, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows [][]string
	for len(rows) < csvRowCap {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("csv: %w", err)
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return emptyCSV, nil
	}

	header := rows[0]
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	out := make([]string, 0, len(rows)+1)
	out = append(out, tableRow(header), tableRow(sep))
	for _, r := range rows[1:] {
		out = append(out, tableRow(r))
	}
	return strings.Join(out, "\n"), nil
}

func tableRow(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}
