package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type mockModels struct {
	calls    [][]string
	model    string
	taskType string
	err      error
	short    bool
}

func (m *mockModels) EmbedContent(_ context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.model = model
	m.taskType = config.TaskType

	var texts []string
	resp := &genai.EmbedContentResponse{}
	for _, c := range contents {
		text := c.Parts[0].Text
		texts = append(texts, text)
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: []float32{float32(len(text)), 1}})
	}
	m.calls = append(m.calls, texts)
	if m.short {
		resp.Embeddings = resp.Embeddings[:len(resp.Embeddings)-1]
	}
	return resp, nil
}

func TestGeminiEmbedder_Embed(t *testing.T) {
	models := &mockModels{}
	e := NewGeminiEmbedder(models, "")

	vectors, err := e.Embed(context.Background(), []string{"NETFLIX", "SPOTIFY PREMIUM"})
	require.NoError(t, err)

	assert.Equal(t, [][]float32{{7, 1}, {15, 1}}, vectors)
	assert.Equal(t, DefaultModel, models.model)
	assert.Equal(t, "CLUSTERING", models.taskType)
	assert.Len(t, models.calls, 1)
}

func TestGeminiEmbedder_Batches(t *testing.T) {
	models := &mockModels{}
	e := NewGeminiEmbedder(models, "custom-model")

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = fmt.Sprintf("M%d", i)
	}
	vectors, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)

	assert.Len(t, vectors, 250)
	require.Len(t, models.calls, 3)
	assert.Len(t, models.calls[0], 100)
	assert.Len(t, models.calls[2], 50)
	assert.Equal(t, "M249", models.calls[2][49])
	assert.Equal(t, "custom-model", models.model)
}

func TestGeminiEmbedder_Errors(t *testing.T) {
	_, err := NewGeminiEmbedder(&mockModels{err: errors.New("quota")}, "").Embed(context.Background(), []string{"A"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")

	_, err = NewGeminiEmbedder(&mockModels{short: true}, "").Embed(context.Background(), []string{"A", "B"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 1 embeddings for 2 texts")
}
