package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiEmbedder(t *testing.T) {
	t.Run("Should not call the API for empty input", func(t *testing.T) {
		g := &GeminiEmbedder{modelName: defaultEmbedModel}
		out, err := g.EmbedTexts(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, out)
		assert.NoError(t, g.Close())
	})

	t.Run("Should require an api key", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		_, err := NewGeminiEmbedder(context.Background(), "", "")
		assert.ErrorContains(t, err, "api key")
	})
}
