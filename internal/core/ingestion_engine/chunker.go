package ingestion_engine

import (
	"iter"
	"regexp"
	"strconv"
	"strings"

	"github.com/markdave123-py/docingest/internal/models"
)

const (
	minChunkSize = 32
	// newlineSearch is how far past the window a chunk may extend to end on a newline.
	newlineSearch = 80
)

var (
	headingRe = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+.*$`)
	hspaceRe  = regexp.MustCompile(`[ \t]+`)
	pageRe    = regexp.MustCompile(`(?i)\bpage\s+(\d+)\b`)
)

// normalizeMarkdown collapses horizontal whitespace runs and trims.
func normalizeMarkdown(md string) string {
	return strings.TrimSpace(hspaceRe.ReplaceAllString(md, " "))
}

// splitSections splits on heading lines, dropping the headings themselves.
// Text without any heading is treated as one section.
func splitSections(md string) []string {
	if !headingRe.MatchString(md) {
		md = docHeading + md
	}
	parts := headingRe.Split(md, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Chunks walks md section by section with a sliding window of
// opt.ChunkSize runes, re-reading opt.Overlap runes between windows. A window
// that stops short of its section end is stretched to the next newline when
// one occurs within newlineSearch runes. Every call re-walks md.
func Chunks(md string, base models.Meta, opt models.IngestOptions) iter.Seq[models.Chunk] {
	size := max(minChunkSize, opt.ChunkSize)
	overlap := max(0, opt.Overlap)

	return func(yield func(models.Chunk) bool) {
		text := normalizeMarkdown(md)
		sections := splitSections(text)
		if len(sections) == 0 {
			sections = []string{text}
		}

		for idx, section := range sections {
			sec := []rune(section)
			n := len(sec)
			for i := 0; i < n; {
				end := min(n, i+size)
				if end < n {
					limit := min(n, end+newlineSearch)
					for k := end; k < limit; k++ {
						if sec[k] == '\n' {
							end = k
							break
						}
					}
				}

				snippet := string(sec[i:end])
				meta := base.Clone()
				meta.Set(models.MetaSection, strconv.Itoa(idx))
				if m := pageRe.FindStringSubmatch(snippet); m != nil {
					meta.Set(models.MetaPage, m[1])
				}
				if snippet = strings.TrimSpace(snippet); snippet != "" {
					if !yield(models.Chunk{Text: snippet, Meta: meta}) {
						return
					}
				}

				if end >= n {
					break
				}
				next := end - overlap
				if next <= i {
					next = i + 1
				}
				i = next
			}
		}
	}
}
