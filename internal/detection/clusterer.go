package detection

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"gonum.org/v1/gonum/floats"
)

// Clusterer maps each distinct merchant label to a unified name. Every
// input label must appear as a key, and every value must be one of the
// input labels.
type Clusterer interface {
	Cluster(ctx context.Context, labels []string) (map[string]string, error)
}

// Embedder turns texts into dense vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// IdentityClusterer maps every label to itself.
type IdentityClusterer struct{}

// Cluster implements Clusterer.
func (IdentityClusterer) Cluster(_ context.Context, labels []string) (map[string]string, error) {
	return identityMapping(labels), nil
}

// EmbeddingClusterer groups labels by cosine distance between their
// embeddings using DBSCAN.
type EmbeddingClusterer struct {
	embedder   Embedder
	eps        float64
	minSamples int
}

// NewEmbeddingClusterer creates a clusterer over the given embedder.
func NewEmbeddingClusterer(embedder Embedder, eps float64, minSamples int) *EmbeddingClusterer {
	return &EmbeddingClusterer{embedder: embedder, eps: eps, minSamples: minSamples}
}

// Cluster implements Clusterer. Embedding failures are returned so the
// caller can fall back to identity grouping.
func (c *EmbeddingClusterer) Cluster(ctx context.Context, labels []string) (map[string]string, error) {
	if len(labels) < 2 {
		return identityMapping(labels), nil
	}

	raw, err := c.embedder.Embed(ctx, labels)
	if err != nil {
		return nil, fmt.Errorf("EmbeddingClusterer.Cluster: embed %d labels: %w", len(labels), err)
	}
	if len(raw) != len(labels) {
		return nil, fmt.Errorf("EmbeddingClusterer.Cluster: got %d embeddings for %d labels", len(raw), len(labels))
	}

	vectors := make([][]float64, len(raw))
	norms := make([]float64, len(raw))
	for i, v := range raw {
		vectors[i] = make([]float64, len(v))
		for j, x := range v {
			vectors[i][j] = float64(x)
		}
		norms[i] = floats.Norm(vectors[i], 2)
	}

	dist := func(i, j int) float64 {
		if len(vectors[i]) != len(vectors[j]) || norms[i] == 0 || norms[j] == 0 {
			return 1
		}
		return 1 - floats.Dot(vectors[i], vectors[j])/(norms[i]*norms[j])
	}

	return representatives(labels, dbscan(len(labels), dist, c.eps, c.minSamples)), nil
}

// LexicalClusterer groups labels by normalised edit distance. It needs no
// external service and serves as an offline alternative to embeddings.
type LexicalClusterer struct {
	eps        float64
	minSamples int
}

// NewLexicalClusterer creates a clusterer that treats labels as neighbours
// when 1 - levenshtein ratio <= eps.
func NewLexicalClusterer(eps float64, minSamples int) *LexicalClusterer {
	return &LexicalClusterer{eps: eps, minSamples: minSamples}
}

// Cluster implements Clusterer.
func (c *LexicalClusterer) Cluster(_ context.Context, labels []string) (map[string]string, error) {
	if len(labels) < 2 {
		return identityMapping(labels), nil
	}
	runes := make([][]rune, len(labels))
	for i, l := range labels {
		runes[i] = []rune(l)
	}
	dist := func(i, j int) float64 {
		return 1 - levenshtein.RatioForStrings(runes[i], runes[j], levenshtein.DefaultOptions)
	}
	return representatives(labels, dbscan(len(labels), dist, c.eps, c.minSamples)), nil
}

func identityMapping(labels []string) map[string]string {
	mapping := make(map[string]string, len(labels))
	for _, l := range labels {
		mapping[l] = l
	}
	return mapping
}

// representatives maps each label to the shortest member of its cluster,
// first occurrence winning ties. Noise points map to themselves.
func representatives(labels []string, assignment []int) map[string]string {
	shortest := make(map[int]string)
	for i, id := range assignment {
		if id == noiseLabel {
			continue
		}
		cur, ok := shortest[id]
		if !ok || utf8.RuneCountInString(labels[i]) < utf8.RuneCountInString(cur) {
			shortest[id] = labels[i]
		}
	}

	mapping := make(map[string]string, len(labels))
	for i, id := range assignment {
		if id == noiseLabel {
			mapping[labels[i]] = labels[i]
			continue
		}
		mapping[labels[i]] = shortest[id]
	}
	return mapping
}
