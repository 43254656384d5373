package ingestion_engine

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/markdave123-py/docingest/internal/models"
)

var spaceRe = regexp.MustCompile(`\s+`)

// Signature hashes the trimmed, lower-cased, whitespace-collapsed text.
func Signature(text string) string {
	norm := spaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
	sum := sha1.Sum([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// Dedupe keeps the first chunk of every content signature, preserving order.
func Dedupe(chunks []models.Chunk) []models.Chunk {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		sig := Signature(c.Text)
		if _, ok := seen[sig]; ok {
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, c)
	}
	return out
}
