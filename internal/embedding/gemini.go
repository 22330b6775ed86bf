package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-004"

// maxBatch is the per-request input limit of the embeddings endpoint.
const maxBatch = 100

// ContentEmbedder is the subset of *genai.Models used by GeminiEmbedder.
type ContentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiEmbedder turns merchant labels into embedding vectors with Gemini.
type GeminiEmbedder struct {
	models ContentEmbedder
	model  string
}

// NewGeminiEmbedder wraps an EmbedContent implementation.
func NewGeminiEmbedder(models ContentEmbedder, model string) *GeminiEmbedder {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiEmbedder{models: models, model: model}
}

// NewGeminiClientEmbedder creates a genai client from the environment
// (GOOGLE_API_KEY or Vertex AI settings) and wraps its Models service.
func NewGeminiClientEmbedder(ctx context.Context, model string) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClientEmbedder: create genai client: %w", err)
	}
	return NewGeminiEmbedder(client.Models, model), nil
}

// Embed returns one vector per text, in input order.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := start + maxBatch
		if end > len(texts) {
			end = len(texts)
		}

		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}

		resp, err := e.models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
			TaskType: "CLUSTERING",
		})
		if err != nil {
			return nil, fmt.Errorf("GeminiEmbedder.Embed: embed batch %d-%d: %w", start, end, err)
		}
		if resp == nil || len(resp.Embeddings) != end-start {
			got := 0
			if resp != nil {
				got = len(resp.Embeddings)
			}
			return nil, fmt.Errorf("GeminiEmbedder.Embed: got %d embeddings for %d texts", got, end-start)
		}
		for _, emb := range resp.Embeddings {
			if emb == nil {
				return nil, fmt.Errorf("GeminiEmbedder.Embed: nil embedding in response")
			}
			out = append(out, emb.Values)
		}
	}
	return out, nil
}
