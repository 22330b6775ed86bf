package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/dvloznov/subscription-radar/internal/detection"
)

// Clustering backends.
const (
	BackendGemini  = "gemini"
	BackendLexical = "lexical"
	BackendNone    = "none"
)

// Config is the process configuration shared by the API server and the CLI.
type Config struct {
	Port              string
	LogLevel          string
	GCSBucket         string
	BigQueryProject   string
	BigQueryDataset   string
	ClusteringBackend string
	EmbeddingModel    string
	ClassifierMode    detection.ClassifierMode
	KeywordsFile      string
	MaxUploadBytes    int64
	JobQueueSize      int
	JobWorkers        int
	JobMaxRetries     int
}

// Load reads configuration from the environment, applying defaults for
// unset variables. If CONFIG_FILE names a YAML file its keys (port,
// clustering_backend, ...) are read too; environment variables win over
// the file.
func Load() (Config, error) {
	v := newViper()

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("Load: reading %s: %w", path, err)
		}
	}

	return fromViper(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("gcs_bucket", "")
	v.SetDefault("bigquery_project", "")
	v.SetDefault("bigquery_dataset", "finance")
	v.SetDefault("clustering_backend", BackendGemini)
	v.SetDefault("embedding_model", "text-embedding-004")
	v.SetDefault("classifier_mode", string(detection.ClassifierModeBatch))
	v.SetDefault("keywords_file", "")
	v.SetDefault("max_upload_bytes", int64(10<<20))
	v.SetDefault("job_queue_size", 100)
	v.SetDefault("job_workers", 5)
	v.SetDefault("job_max_retries", 2)
	v.AutomaticEnv()
	return v
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:              strings.TrimSpace(v.GetString("port")),
		LogLevel:          strings.TrimSpace(v.GetString("log_level")),
		GCSBucket:         v.GetString("gcs_bucket"),
		BigQueryProject:   v.GetString("bigquery_project"),
		BigQueryDataset:   v.GetString("bigquery_dataset"),
		ClusteringBackend: strings.ToLower(strings.TrimSpace(v.GetString("clustering_backend"))),
		EmbeddingModel:    v.GetString("embedding_model"),
		ClassifierMode:    detection.ParseClassifierMode(v.GetString("classifier_mode")),
		KeywordsFile:      v.GetString("keywords_file"),
	}

	var err error
	if cfg.MaxUploadBytes, err = int64Key(v, "max_upload_bytes"); err != nil {
		return Config{}, err
	}
	queue, err := int64Key(v, "job_queue_size")
	if err != nil {
		return Config{}, err
	}
	workers, err := int64Key(v, "job_workers")
	if err != nil {
		return Config{}, err
	}
	retries, err := int64Key(v, "job_max_retries")
	if err != nil {
		return Config{}, err
	}
	cfg.JobQueueSize, cfg.JobWorkers, cfg.JobMaxRetries = int(queue), int(workers), int(retries)

	switch cfg.ClusteringBackend {
	case BackendGemini, BackendLexical, BackendNone:
	default:
		return Config{}, fmt.Errorf("Load: unknown CLUSTERING_BACKEND %q", cfg.ClusteringBackend)
	}
	if cfg.MaxUploadBytes <= 0 || cfg.JobQueueSize <= 0 || cfg.JobWorkers <= 0 {
		return Config{}, fmt.Errorf("Load: MAX_UPLOAD_BYTES, JOB_QUEUE_SIZE and JOB_WORKERS must be positive")
	}
	if cfg.JobMaxRetries < 0 {
		return Config{}, fmt.Errorf("Load: JOB_MAX_RETRIES must not be negative")
	}
	return cfg, nil
}

// int64Key reads an integer setting strictly; viper's GetInt64 turns
// malformed values into 0.
func int64Key(v *viper.Viper, key string) (int64, error) {
	n, err := cast.ToInt64E(v.Get(key))
	if err != nil {
		return 0, fmt.Errorf("Load: %s: %w", strings.ToUpper(key), err)
	}
	return n, nil
}

// DetectionConfig returns detection thresholds with the configured
// classifier mode applied.
func (c Config) DetectionConfig() detection.Config {
	dc := detection.DefaultConfig()
	dc.ClassifierMode = c.ClassifierMode
	return dc
}
