// Package detection finds recurring payments in a batch of bank
// transactions: it cleans merchant names, clusters spelling variants,
// scores each merchant's regularity and reports subscriptions with their
// cost and risk.
package detection

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/dvloznov/subscription-radar/internal/domain"
	"github.com/dvloznov/subscription-radar/internal/logger"
)

// Recorder receives detection metrics.
type Recorder interface {
	ObserveAnalysis(status string, elapsed time.Duration)
	ClusteringFallback()
	ClassifierFailure()
	Detections(pattern PatternType, n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAnalysis(string, time.Duration) {}
func (nopRecorder) ClusteringFallback()                   {}
func (nopRecorder) ClassifierFailure()                    {}
func (nopRecorder) Detections(PatternType, int)           {}

// Detector runs the full detection pipeline. It is safe for concurrent use.
type Detector struct {
	cfg        Config
	clusterer  Clusterer
	keywords   KeywordTables
	normalizer *Normalizer
	classifier *RecurrenceClassifier
	clock      func() time.Time
	metrics    Recorder
}

// Option customises a Detector.
type Option func(*Detector)

// WithClock overrides the time source used for days-since-last.
func WithClock(clock func() time.Time) Option {
	return func(d *Detector) { d.clock = clock }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(d *Detector) {
		if r != nil {
			d.metrics = r
		}
	}
}

// WithNormalizer replaces the default merchant normalizer.
func WithNormalizer(n *Normalizer) Option {
	return func(d *Detector) { d.normalizer = n }
}

// NewDetector creates a detector. A nil clusterer means identity grouping.
func NewDetector(cfg Config, clusterer Clusterer, keywords KeywordTables, opts ...Option) *Detector {
	if clusterer == nil {
		clusterer = IdentityClusterer{}
	}
	d := &Detector{
		cfg:        cfg,
		clusterer:  clusterer,
		keywords:   keywords,
		normalizer: DefaultNormalizer(),
		classifier: NewRecurrenceClassifier(cfg.Forest, cfg.ClassifierMode),
		clock:      time.Now,
		metrics:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) newPipeline() *Pipeline {
	return NewPipeline(
		&NormalizeStep{Normalizer: d.normalizer},
		&ClusterStep{Clusterer: d.clusterer, Metrics: d.metrics},
		&GroupStep{MinGroupSize: d.cfg.MinGroupSize},
		&EligibilityStep{Keywords: d.keywords},
		&FeatureStep{},
		&ClassifyStep{Classifier: d.classifier, Metrics: d.metrics},
		&ScoreStep{Config: d.cfg, Keywords: d.keywords},
	)
}

// Analyze detects recurring payments in txs. Invalid transactions are
// ignored. An input with fewer than MinTransactions valid rows yields an
// insufficient_data report rather than an error; errors are reserved for
// cancellation and internal failures.
func (d *Detector) Analyze(ctx context.Context, txs []domain.Transaction) (report *Report, err error) {
	start := time.Now()
	analysisID := uuid.NewString()
	ctx, log := logger.WithAnalysis(ctx, analysisID, "detector")

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("detection panicked")
			report, err = nil, fmt.Errorf("Detector.Analyze: internal error: %v", r)
		}
		status := "error"
		if err == nil {
			status = report.Status
		}
		d.metrics.ObserveAnalysis(status, time.Since(start))
	}()

	valid := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Valid() && tx.RawDescription != "" {
			valid = append(valid, tx)
		}
	}

	if len(valid) < d.cfg.MinTransactions {
		log.Info().Int("transactions", len(valid)).Msg("not enough transactions to analyze")
		return &Report{
			AnalysisID:       analysisID,
			Status:           ReportInsufficientData,
			Message:          fmt.Sprintf("Need at least %d transactions to detect recurring payments, got %d", d.cfg.MinTransactions, len(valid)),
			Results:          []DetectionResult{},
			Subscriptions:    []DetectionResult{},
			Patterns:         []DetectionResult{},
			Insights:         Insights{Categories: []string{}},
			TransactionCount: len(valid),
		}, nil
	}

	state := &PipelineState{
		Now:          civil.DateOf(d.clock()),
		Transactions: valid,
	}
	if err := d.newPipeline().Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("Detector.Analyze: %w", err)
	}

	results := state.Results
	SortResults(results)
	subscriptions, patterns := Partition(results)
	d.metrics.Detections(PatternSubscription, len(subscriptions))
	d.metrics.Detections(PatternLoose, len(patterns))

	log.Info().
		Int("transactions", len(valid)).
		Int("merchants", len(state.Labels)).
		Int("subscriptions", len(subscriptions)).
		Int("patterns", len(patterns)).
		Dur("elapsed", time.Since(start)).
		Msg("analysis complete")

	return &Report{
		AnalysisID:       analysisID,
		Status:           ReportSuccess,
		Message:          fmt.Sprintf("Found %d subscriptions and %d recurring patterns", len(subscriptions), len(patterns)),
		Results:          results,
		Subscriptions:    subscriptions,
		Patterns:         patterns,
		Insights:         BuildInsights(results),
		TransactionCount: len(valid),
		MerchantCount:    len(uniqueValues(state.Mapping)),
	}, nil
}

func uniqueValues(m map[string]string) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for _, v := range m {
		out[v] = struct{}{}
	}
	return out
}
