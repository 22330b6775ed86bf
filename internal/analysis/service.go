// Package analysis wires statement ingestion, detection and export into
// the operations exposed by the HTTP API, the job worker and the CLI.
package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dvloznov/subscription-radar/internal/detection"
	"github.com/dvloznov/subscription-radar/internal/domain"
	"github.com/dvloznov/subscription-radar/internal/gcsuploader"
	bq "github.com/dvloznov/subscription-radar/internal/infra/bigquery"
	"github.com/dvloznov/subscription-radar/internal/jobs"
	"github.com/dvloznov/subscription-radar/internal/logger"
	"github.com/dvloznov/subscription-radar/internal/statement"
)

// Analyzer runs detection over a batch of transactions.
type Analyzer interface {
	Analyze(ctx context.Context, txs []domain.Transaction) (*detection.Report, error)
}

// SkipRecorder counts statement rows dropped during ingestion.
type SkipRecorder interface {
	RowsSkipped(n int)
}

// Service analyzes statements from uploads, local files and GCS.
type Service struct {
	analyzer Analyzer
	storage  gcsuploader.StorageService
	sink     bq.ResultsSink
	skips    SkipRecorder
}

// Option configures a Service.
type Option func(*Service)

// WithStorage enables gs:// statement sources.
func WithStorage(s gcsuploader.StorageService) Option {
	return func(svc *Service) { svc.storage = s }
}

// WithSink exports every successful report.
func WithSink(s bq.ResultsSink) Option {
	return func(svc *Service) { svc.sink = s }
}

// WithSkipRecorder reports dropped rows.
func WithSkipRecorder(r SkipRecorder) Option {
	return func(svc *Service) { svc.skips = r }
}

// NewService creates a Service around analyzer.
func NewService(analyzer Analyzer, opts ...Option) *Service {
	svc := &Service{analyzer: analyzer}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// AnalyzeCSV reads a CSV statement from r and runs detection on it. source
// names the statement in logs and exports. A statement without the
// required columns yields a *statement.MissingColumnsError.
func (s *Service) AnalyzeCSV(ctx context.Context, r io.Reader, source string) (*detection.Report, error) {
	log := logger.FromContext(ctx)

	res, err := statement.Read(r)
	if err != nil {
		return nil, err
	}
	if res.Skipped > 0 {
		log.Info().
			Str("source", source).
			Int("rows", res.Rows).
			Int("skipped", res.Skipped).
			Msg("skipped unusable statement rows")
		if s.skips != nil {
			s.skips.RowsSkipped(res.Skipped)
		}
	}

	report, err := s.analyzer.Analyze(ctx, res.Transactions)
	if err != nil {
		return nil, fmt.Errorf("AnalyzeCSV: %w", err)
	}
	report.SkippedRows = res.Skipped

	s.export(ctx, report, source)
	return report, nil
}

// AnalyzeGCS fetches a statement from a gs:// URI and analyzes it.
func (s *Service) AnalyzeGCS(ctx context.Context, gcsURI string) (*detection.Report, error) {
	if s.storage == nil {
		return nil, errors.New("AnalyzeGCS: no storage configured")
	}
	data, err := s.storage.FetchFromGCS(ctx, gcsURI)
	if err != nil {
		return nil, fmt.Errorf("AnalyzeGCS: %w", err)
	}
	return s.AnalyzeCSV(ctx, bytes.NewReader(data), gcsURI)
}

// HandleJob is a jobs.JobHandler for AnalyzeStatementJob. Storage errors
// are retryable; malformed statements and detection failures are not.
func (s *Service) HandleJob(ctx context.Context, job jobs.Job) error {
	analyzeJob, ok := job.(*jobs.AnalyzeStatementJob)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected job type: %T", job))
	}

	log := logger.FromContext(ctx).With().
		Str("job_id", analyzeJob.JobID).
		Str("gcs_uri", analyzeJob.GCSURI).
		Logger()
	ctx = logger.WithContext(ctx, log)

	log.Info().Msg("Processing analysis job")

	if s.storage == nil {
		return jobs.Permanent(errors.New("no storage configured"))
	}
	data, err := s.storage.FetchFromGCS(ctx, analyzeJob.GCSURI)
	if err != nil {
		log.Error().Err(err).Msg("Fetching statement failed")
		return err
	}

	report, err := s.AnalyzeCSV(ctx, bytes.NewReader(data), analyzeJob.GCSURI)
	if err != nil {
		log.Error().Err(err).Msg("Analysis failed")
		return jobs.Permanent(err)
	}

	analyzeJob.Report = report
	log.Info().
		Str("analysis_id", report.AnalysisID).
		Str("status", report.Status).
		Msg("Analysis job completed")
	return nil
}

func (s *Service) export(ctx context.Context, report *detection.Report, source string) {
	if s.sink == nil || report.Status != detection.ReportSuccess || len(report.Results) == 0 {
		return
	}
	if err := s.sink.InsertDetections(ctx, report, source); err != nil {
		log := logger.FromContext(ctx)
		log.Error().
			Err(err).
			Str("analysis_id", report.AnalysisID).
			Msg("exporting detections failed")
	}
}
