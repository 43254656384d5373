package ingestion_engine

import (
	"math/rand"
	"slices"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docingest/internal/models"
)

func collect(md string, opt models.IngestOptions) []models.Chunk {
	return slices.Collect(Chunks(md, models.NewMeta(models.MetaSource, "/doc"), opt))
}

func TestSplitSections(t *testing.T) {
	t.Run("Should treat text without headings as one section", func(t *testing.T) {
		assert.Equal(t, []string{"hello world"}, splitSections("hello world"))
	})

	t.Run("Should drop heading lines and empty sections", func(t *testing.T) {
		md := "# Title\n\nintro\n\n## Part\nbody\n   ### Deep\n#### Empty\n"
		assert.Equal(t, []string{"intro", "body"}, splitSections(md))
	})

	t.Run("Should not treat hashtags or over-indented hashes as headings", func(t *testing.T) {
		md := "#tag is not a heading\n    # four spaces of indent"
		assert.Equal(t, []string{md}, splitSections(md))
	})
}

func TestChunks(t *testing.T) {
	t.Run("Should attach section indices in document order", func(t *testing.T) {
		chunks := collect("# A\nfirst section text\n# B\nsecond section text", testOptions())
		require.Len(t, chunks, 2)
		assert.Equal(t, "first section text", chunks[0].Text)
		assert.Equal(t, "0", chunks[0].Meta.Value(models.MetaSection))
		assert.Equal(t, "1", chunks[1].Meta.Value(models.MetaSection))
		assert.Equal(t, "/doc", chunks[1].Meta.Value(models.MetaSource))
	})

	t.Run("Should collapse horizontal whitespace", func(t *testing.T) {
		chunks := collect("a  \t b\n\nc", testOptions())
		require.Len(t, chunks, 1)
		assert.Equal(t, "a b\n\nc", chunks[0].Text)
	})

	t.Run("Should detect page markers case-insensitively", func(t *testing.T) {
		chunks := collect("header\nPAGE 12\nbody", testOptions())
		require.Len(t, chunks, 1)
		assert.Equal(t, "12", chunks[0].Meta.Value(models.MetaPage))

		chunks = collect("no marker here, pages 3", testOptions())
		_, ok := chunks[0].Meta.Get(models.MetaPage)
		assert.False(t, ok)
	})

	t.Run("Should extend a window to the next newline within reach", func(t *testing.T) {
		first := strings.Repeat("a", 40)
		md := first + "\n" + strings.Repeat("b", 20)
		opt := testOptions()
		opt.ChunkSize = 32

		chunks := collect(md, opt)
		require.Len(t, chunks, 2)
		assert.Equal(t, first, chunks[0].Text)
		assert.Equal(t, strings.Repeat("b", 20), chunks[1].Text)
	})

	t.Run("Should cut at the window when no newline is near", func(t *testing.T) {
		opt := testOptions()
		opt.ChunkSize = 32
		chunks := collect(strings.Repeat("x", 200), opt)
		require.NotEmpty(t, chunks)
		assert.Equal(t, 32, utf8.RuneCountInString(chunks[0].Text))
	})

	t.Run("Should raise chunk size to the floor", func(t *testing.T) {
		opt := testOptions()
		opt.ChunkSize = 1
		chunks := collect(strings.Repeat("y", 64), opt)
		require.Len(t, chunks, 2)
		assert.Equal(t, 32, len(chunks[0].Text))
	})

	t.Run("Should re-read the overlap between windows", func(t *testing.T) {
		opt := testOptions()
		opt.ChunkSize = 32
		opt.Overlap = 8
		md := strings.Repeat("0123456789", 5)
		chunks := collect(md, opt)
		require.Len(t, chunks, 2)
		assert.Equal(t, md[:32], chunks[0].Text)
		assert.Equal(t, md[24:], chunks[1].Text)
	})

	t.Run("Should stop at the section end with overlap", func(t *testing.T) {
		opt := testOptions()
		opt.ChunkSize = 32
		opt.Overlap = 16
		chunks := collect("short text", opt)
		assert.Len(t, chunks, 1)
	})

	t.Run("Should terminate when overlap is not smaller than the chunk size", func(t *testing.T) {
		opt := testOptions()
		opt.ChunkSize = 32
		opt.Overlap = 500
		chunks := collect(strings.Repeat("z", 40), opt)
		// advances one rune at a time until the window reaches the end
		assert.Len(t, chunks, 9)
	})

	t.Run("Should floor a negative overlap at zero", func(t *testing.T) {
		opt := testOptions()
		opt.ChunkSize = 32
		opt.Overlap = -10
		chunks := collect(strings.Repeat("q", 64), opt)
		assert.Len(t, chunks, 2)
	})

	t.Run("Should count runes, not bytes", func(t *testing.T) {
		opt := testOptions()
		opt.ChunkSize = 32
		chunks := collect(strings.Repeat("é", 64), opt)
		require.Len(t, chunks, 2)
		assert.Equal(t, 32, utf8.RuneCountInString(chunks[0].Text))
	})

	t.Run("Should be restartable by calling again", func(t *testing.T) {
		seq := Chunks("# A\none\n# B\ntwo", nil, testOptions())
		assert.Equal(t, slices.Collect(seq), slices.Collect(seq))
	})

	t.Run("Should stop early when the consumer stops", func(t *testing.T) {
		opt := testOptions()
		opt.ChunkSize = 32
		n := 0
		for range Chunks(strings.Repeat("w", 1000), nil, opt) {
			n++
			if n == 2 {
				break
			}
		}
		assert.Equal(t, 2, n)
	})

	t.Run("Should bound every chunk by size plus the newline reach", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		alphabet := []rune("abc de\n\t#Page 1é")
		for range 200 {
			var b strings.Builder
			for range rng.Intn(3000) {
				b.WriteRune(alphabet[rng.Intn(len(alphabet))])
			}
			size := 32 + rng.Intn(200)
			opt := testOptions()
			opt.ChunkSize = size
			opt.Overlap = rng.Intn(size)

			for c := range Chunks(b.String(), nil, opt) {
				require.NotEmpty(t, c.Text)
				require.LessOrEqual(t, utf8.RuneCountInString(c.Text), size+newlineSearch)
			}
		}
	})
}
