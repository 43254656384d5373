package ingestion_engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docingest/internal/core/metrics"
	"github.com/markdave123-py/docingest/internal/models"
)

func TestNativeRenderer(t *testing.T) {
	dir := t.TempDir()
	stats := metrics.NewRegistry()
	r := NewNativeRenderer(stats)

	t.Run("Should prefix plain text with a document heading", func(t *testing.T) {
		p := writeFile(t, dir, "a.txt", "hello world")
		md, meta, err := r.Render(p)
		require.NoError(t, err)
		assert.Equal(t, "# Document\nhello world", md)

		abs, _ := filepath.Abs(p)
		assert.Equal(t, abs, meta.Value(models.MetaSource))
		assert.Equal(t, "a.txt", meta.Value(models.MetaFilename))
		assert.Equal(t, ".txt", meta.Value(models.MetaExt))
	})

	t.Run("Should keep plain text that already starts with a heading", func(t *testing.T) {
		p := writeFile(t, dir, "h.txt", "\n  # Notes\nbody")
		md, _, err := r.Render(p)
		require.NoError(t, err)
		assert.Equal(t, "\n  # Notes\nbody", md)
	})

	t.Run("Should pass markdown through and drop invalid UTF-8", func(t *testing.T) {
		p := writeFile(t, dir, "b.md", "# Title\n\nhel\xfflo")
		md, _, err := r.Render(p)
		require.NoError(t, err)
		assert.Equal(t, "# Title\n\nhello", md)
	})

	t.Run("Should pretty print JSON inside a fenced block", func(t *testing.T) {
		p := writeFile(t, dir, "c.json", `{"a":1}`)
		md, _, err := r.Render(p)
		require.NoError(t, err)
		assert.Equal(t, "```json\n{\n  \"a\": 1\n}\n```", md)
	})

	t.Run("Should keep JSON key order", func(t *testing.T) {
		p := writeFile(t, dir, "order.json", `{"z":1,"a":{"y":2,"b":3}}`)
		md, _, err := r.Render(p)
		require.NoError(t, err)
		assert.Less(t, strings.Index(md, `"z"`), strings.Index(md, `"a"`))
		assert.Less(t, strings.Index(md, `"y"`), strings.Index(md, `"b"`))
	})

	t.Run("Should put each array element on its own line", func(t *testing.T) {
		p := writeFile(t, dir, "arr.json", `{"a":[1,2,3],"e":[]}`)
		md, _, err := r.Render(p)
		require.NoError(t, err)
		assert.Equal(t, "```json\n{\n  \"a\": [\n    1,\n    2,\n    3\n  ],\n  \"e\": []\n}\n```", md)
	})

	t.Run("Should fail malformed JSON with a RenderError", func(t *testing.T) {
		p := writeFile(t, dir, "bad.json", `{"a":`)
		_, _, err := r.Render(p)
		var rerr *RenderError
		require.True(t, errors.As(err, &rerr))
		assert.Equal(t, p, rerr.Path)
		assert.Equal(t, ".json", rerr.Ext)
	})

	t.Run("Should compact JSON lines and pass invalid lines through", func(t *testing.T) {
		p := writeFile(t, dir, "d.jsonl", "{\"a\": 1, \"b\": [1, 2]}\n\nnot json\n  {\"c\":true}  \n")
		md, _, err := r.Render(p)
		require.NoError(t, err)
		assert.Equal(t, "# JSON Lines\n{\"a\":1,\"b\":[1,2]}\nnot json\n{\"c\":true}", md)
	})

	t.Run("Should cap JSON lines", func(t *testing.T) {
		var b strings.Builder
		for i := range 600 {
			fmt.Fprintf(&b, "{\"i\":%d}\n", i)
		}
		p := writeFile(t, dir, "big.jsonl", b.String())
		md, _, err := r.Render(p)
		require.NoError(t, err)
		assert.Equal(t, jsonlLineCap+1, strings.Count(md, "\n")+1)
	})

	t.Run("Should render CSV as a table with N+2 lines", func(t *testing.T) {
		p := writeFile(t, dir, "e.csv", "name,qty\napple,1\npear,2\n\"fig, dried\",3\n")
		md, _, err := r.Render(p)
		require.NoError(t, err)
		lines := strings.Split(md, "\n")
		require.Len(t, lines, 3+2)
		assert.Equal(t, "| name | qty |", lines[0])
		assert.Equal(t, "| --- | --- |", lines[1])
		assert.Equal(t, "| fig, dried | 3 |", lines[4])
	})

	t.Run("Should cap CSV rows", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("n\n")
		for i := range 700 {
			fmt.Fprintf(&b, "%d\n", i)
		}
		p := writeFile(t, dir, "big.csv", b.String())
		md, _, err := r.Render(p)
		require.NoError(t, err)
		assert.Len(t, strings.Split(md, "\n"), csvRowCap+1)
	})

	t.Run("Should render an empty CSV as a placeholder", func(t *testing.T) {
		p := writeFile(t, dir, "empty.csv", "")
		md, _, err := r.Render(p)
		require.NoError(t, err)
		assert.Equal(t, "# CSV (empty)\n", md)
	})

	t.Run("Should charge native IO time on failure too", func(t *testing.T) {
		s := metrics.NewRegistry()
		rr := NewNativeRenderer(s)
		_, _, err := rr.Render(filepath.Join(dir, "missing.txt"))
		require.Error(t, err)
		assert.Greater(t, s.Seconds(metrics.StageNativeIO), 0.0)
	})
}
