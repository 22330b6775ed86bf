package analysis

import (
	"context"
	"fmt"

	"github.com/dvloznov/subscription-radar/internal/config"
	"github.com/dvloznov/subscription-radar/internal/detection"
	"github.com/dvloznov/subscription-radar/internal/embedding"
	"github.com/dvloznov/subscription-radar/internal/logger"
)

// NewClusterer builds the merchant clusterer selected by
// cfg.ClusteringBackend. If the Gemini client cannot be created the
// error is returned together with an identity clusterer.
func NewClusterer(ctx context.Context, cfg config.Config) (detection.Clusterer, error) {
	dc := cfg.DetectionConfig()

	switch cfg.ClusteringBackend {
	case config.BackendNone:
		return detection.IdentityClusterer{}, nil
	case config.BackendLexical:
		return detection.NewLexicalClusterer(dc.ClusterEps, dc.ClusterMinSamples), nil
	case config.BackendGemini:
		embedder, err := embedding.NewGeminiClientEmbedder(ctx, cfg.EmbeddingModel)
		if err != nil {
			return detection.IdentityClusterer{}, fmt.Errorf("NewClusterer: %w", err)
		}
		return detection.NewEmbeddingClusterer(embedder, dc.ClusterEps, dc.ClusterMinSamples), nil
	default:
		return nil, fmt.Errorf("NewClusterer: unknown backend %q", cfg.ClusteringBackend)
	}
}

// NewDetector builds a detector from process configuration: keyword
// tables from cfg.KeywordsFile, the configured clusterer and rec for
// metrics. A clusterer that cannot be created is logged and replaced by
// identity grouping.
func NewDetector(ctx context.Context, cfg config.Config, rec detection.Recorder) (*detection.Detector, error) {
	keywords, err := config.LoadKeywords(cfg.KeywordsFile)
	if err != nil {
		return nil, fmt.Errorf("NewDetector: %w", err)
	}

	clusterer, err := NewClusterer(ctx, cfg)
	if err != nil {
		if clusterer == nil {
			return nil, fmt.Errorf("NewDetector: %w", err)
		}
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("backend", cfg.ClusteringBackend).
			Msg("clustering backend unavailable, grouping merchants by exact name")
	}

	opts := []detection.Option{}
	if rec != nil {
		opts = append(opts, detection.WithMetrics(rec))
	}
	return detection.NewDetector(cfg.DetectionConfig(), clusterer, keywords, opts...), nil
}
