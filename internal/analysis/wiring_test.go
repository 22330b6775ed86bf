package analysis

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/subscription-radar/internal/config"
	"github.com/dvloznov/subscription-radar/internal/detection"
)

func TestNewClusterer(t *testing.T) {
	ctx := context.Background()

	c, err := NewClusterer(ctx, config.Config{ClusteringBackend: config.BackendNone})
	require.NoError(t, err)
	assert.IsType(t, detection.IdentityClusterer{}, c)

	c, err = NewClusterer(ctx, config.Config{ClusteringBackend: config.BackendLexical})
	require.NoError(t, err)
	assert.IsType(t, &detection.LexicalClusterer{}, c)

	_, err = NewClusterer(ctx, config.Config{ClusteringBackend: "word2vec"})
	assert.Error(t, err)
}

func TestNewDetector(t *testing.T) {
	ctx := context.Background()

	det, err := NewDetector(ctx, config.Config{ClusteringBackend: config.BackendLexical}, nil)
	require.NoError(t, err)
	assert.NotNil(t, det)

	_, err = NewDetector(ctx, config.Config{
		ClusteringBackend: config.BackendNone,
		KeywordsFile:      filepath.Join(t.TempDir(), "missing.yaml"),
	}, nil)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte("subscription: [gym]\n"), 0o600))
	det, err = NewDetector(ctx, config.Config{ClusteringBackend: config.BackendNone, KeywordsFile: path}, nil)
	require.NoError(t, err)
	assert.NotNil(t, det)
}
