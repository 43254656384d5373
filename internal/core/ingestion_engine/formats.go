package ingestion_engine

import (
	"path/filepath"
	"slices"
	"strings"
)

// Format is the rendering route a file takes through the pipeline.
type Format int

const (
	FormatUnsupported Format = iota
	FormatNativeText
	FormatNativeStructured
	FormatImage
	FormatConverter
)

func (f Format) String() string {
	switch f {
	case FormatNativeText:
		return "native-text"
	case FormatNativeStructured:
		return "native-structured"
	case FormatImage:
		return "image"
	case FormatConverter:
		return "converter"
	default:
		return "unsupported"
	}
}

// Native reports whether the format is rendered without the converter.
func (f Format) Native() bool {
	return f == FormatNativeText || f == FormatNativeStructured
}

var formatByExt = map[string]Format{
	".txt":   FormatNativeText,
	".md":    FormatNativeText,
	".mdx":   FormatNativeText,
	".csv":   FormatNativeStructured,
	".json":  FormatNativeStructured,
	".jsonl": FormatNativeStructured,

	".pdf":  FormatConverter,
	".doc":  FormatConverter,
	".docx": FormatConverter,
	".ppt":  FormatConverter,
	".pptx": FormatConverter,
	".rtf":  FormatConverter,
	".html": FormatConverter,
	".htm":  FormatConverter,
	".epub": FormatConverter,
	".xls":  FormatConverter,
	".xlsx": FormatConverter,

	".png":  FormatImage,
	".jpg":  FormatImage,
	".jpeg": FormatImage,
	".tif":  FormatImage,
	".tiff": FormatImage,
	".bmp":  FormatImage,
	".gif":  FormatImage,
	".webp": FormatImage,
}

// Ext returns the lower-cased extension of path including the dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Classify maps a path onto its Format by extension.
func Classify(path string) Format {
	return formatByExt[Ext(path)]
}

// IsSupported reports whether the path's extension is in the supported set.
func IsSupported(path string) bool {
	return Classify(path) != FormatUnsupported
}

// SupportedExtensions returns the supported extensions, sorted.
func SupportedExtensions() []string {
	out := make([]string, 0, len(formatByExt))
	for ext := range formatByExt {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}

// Skip reports whether a file of format f must be skipped under the given
// OCR setting, and why.
func Skip(f Format, ocr bool) (bool, string) {
	switch {
	case f == FormatUnsupported:
		return true, "unsupported"
	case f == FormatImage && !ocr:
		return true, "image without OCR"
	default:
		return false, ""
	}
}
