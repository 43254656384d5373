package ingestion_engine

import (
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/markdave123-py/docingest/internal/core"
	"github.com/markdave123-py/docingest/internal/models"
)

const (
	// LangUndetermined is stamped when detection fails or yields nothing.
	LangUndetermined = "und"

	langSampleChunks = 50
	langSampleRunes  = 10_000
)

// WhatlangDetector detects languages with whatlanggo, returning ISO 639-1
// codes where one exists and ISO 639-3 otherwise.
type WhatlangDetector struct{}

var _ core.LanguageDetector = WhatlangDetector{}

func (WhatlangDetector) Detect(text string) (string, error) {
	info := whatlanggo.Detect(text)
	if info.Script == nil {
		return "", fmt.Errorf("no script detected")
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code, nil
	}
	return info.Lang.Iso6393(), nil
}

// detectLanguage never fails: any error, panic or empty answer yields
// LangUndetermined. The input is truncated to langSampleRunes.
func detectLanguage(d core.LanguageDetector, text string) (lang string) {
	if d == nil {
		return LangUndetermined
	}
	defer func() {
		if recover() != nil {
			lang = LangUndetermined
		}
	}()
	if r := []rune(text); len(r) > langSampleRunes {
		text = string(r[:langSampleRunes])
	}
	code, err := d.Detect(text)
	if err != nil || strings.TrimSpace(code) == "" {
		return LangUndetermined
	}
	return code
}

// languageSample joins the first langSampleChunks chunk texts.
func languageSample(chunks []models.Chunk) string {
	n := min(len(chunks), langSampleChunks)
	texts := make([]string, n)
	for i := range n {
		texts[i] = chunks[i].Text
	}
	return strings.Join(texts, "\n\n")
}

// tagLanguage stamps lang onto every chunk lacking one.
func tagLanguage(chunks []models.Chunk, lang string) {
	for i := range chunks {
		chunks[i].Meta.SetDefault(models.MetaLang, lang)
	}
}
