package detection

import (
	"fmt"
	"strings"
)

// ClassifierMode selects the population the isolation forest is fitted on.
type ClassifierMode string

const (
	// ClassifierModeBatch fits one forest on every eligible merchant of a run.
	ClassifierModeBatch ClassifierMode = "batch"
	// ClassifierModePerSample fits a forest on each merchant's vector alone.
	ClassifierModePerSample ClassifierMode = "per-sample"
)

// ParseClassifierMode maps a config value to a mode, defaulting to batch.
func ParseClassifierMode(s string) ClassifierMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "per-sample", "per_sample", "persample":
		return ClassifierModePerSample
	default:
		return ClassifierModeBatch
	}
}

// Classification is the classifier verdict for one merchant.
type Classification struct {
	Prediction int     `json:"prediction"`
	Score      float64 `json:"score"`
}

// failClosed is the verdict used when the classifier cannot run.
var failClosed = Classification{Prediction: -1, Score: -1.0}

// RecurrenceClassifier labels feature vectors as regular (1) or anomalous (-1).
type RecurrenceClassifier struct {
	cfg  ForestConfig
	mode ClassifierMode
}

// NewRecurrenceClassifier creates a classifier.
func NewRecurrenceClassifier(cfg ForestConfig, mode ClassifierMode) *RecurrenceClassifier {
	return &RecurrenceClassifier{cfg: cfg, mode: mode}
}

// Mode returns the fitting mode.
func (c *RecurrenceClassifier) Mode() ClassifierMode { return c.mode }

// ClassifyAll returns one verdict per row. It never fails partially: if a
// forest cannot be fitted the affected rows get (-1, -1.0) and the error
// is returned alongside for logging.
func (c *RecurrenceClassifier) ClassifyAll(rows [][]float64) ([]Classification, error) {
	out := make([]Classification, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	if c.mode == ClassifierModePerSample {
		var firstErr error
		for i, row := range rows {
			cl, err := c.classifyOne(row)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("RecurrenceClassifier.ClassifyAll: row %d: %w", i, err)
			}
			out[i] = cl
		}
		return out, firstErr
	}

	forest, err := FitIsolationForest(rows, c.cfg)
	if err != nil {
		for i := range out {
			out[i] = failClosed
		}
		return out, fmt.Errorf("RecurrenceClassifier.ClassifyAll: %w", err)
	}
	for i, score := range forest.ScoreSamples(rows) {
		out[i] = Classification{Prediction: forest.Predict(score), Score: score}
	}
	return out, nil
}

func (c *RecurrenceClassifier) classifyOne(row []float64) (Classification, error) {
	rows := [][]float64{row}
	forest, err := FitIsolationForest(rows, c.cfg)
	if err != nil {
		return failClosed, err
	}
	score := forest.ScoreSamples(rows)[0]
	return Classification{Prediction: forest.Predict(score), Score: score}, nil
}
