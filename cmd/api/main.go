package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/subscription-radar/internal/analysis"
	"github.com/dvloznov/subscription-radar/internal/api/handlers"
	"github.com/dvloznov/subscription-radar/internal/api/middleware"
	"github.com/dvloznov/subscription-radar/internal/config"
	"github.com/dvloznov/subscription-radar/internal/gcsuploader"
	infraBQ "github.com/dvloznov/subscription-radar/internal/infra/bigquery"
	"github.com/dvloznov/subscription-radar/internal/jobs"
	"github.com/dvloznov/subscription-radar/internal/jobs/inmemory"
	"github.com/dvloznov/subscription-radar/internal/logger"
	"github.com/dvloznov/subscription-radar/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	port := flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
	flag.Parse()

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	metrics := observability.NewMetrics()

	detector, err := analysis.NewDetector(ctx, cfg, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create detector")
	}

	opts := []analysis.Option{
		analysis.WithStorage(gcsuploader.NewGCSStorageService(cfg.MaxUploadBytes)),
		analysis.WithSkipRecorder(metrics),
	}

	if cfg.BigQueryProject != "" {
		repo, err := infraBQ.NewResultsRepository(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create results repository")
		}
		defer repo.Close()

		opts = append(opts, analysis.WithSink(repo))
		log.Info().
			Str("project", cfg.BigQueryProject).
			Str("dataset", cfg.BigQueryDataset).
			Msg("Exporting detections to BigQuery")
	} else {
		log.Info().Msg("No BigQuery project configured - detection export disabled")
	}

	svc := analysis.NewService(detector, opts...)

	// Job infrastructure for statements analyzed straight from GCS
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.JobQueueSize, jobStore,
		inmemory.WithWorkers(cfg.JobWorkers),
		inmemory.WithOnFinish(func(job *jobs.AnalyzeStatementJob) {
			metrics.JobFinished(string(job.Status))
		}),
	)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.JobWorkers).Msg("Starting job worker")
	if err := jobQueue.Start(workerCtx, svc.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	router := handlers.NewRouter(handlers.Routes{
		Analyze: handlers.NewAnalyzeHandler(svc, cfg.MaxUploadBytes, log),
		Jobs:    handlers.NewJobsHandler(jobStore, jobQueue, cfg.JobMaxRetries, log),
		Metrics: metrics.Handler(),
	})

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      middleware.Chain(log, router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", *port).
			Str("clustering", cfg.ClusteringBackend).
			Str("classifier_mode", string(cfg.ClassifierMode)).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
