package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/subscription-radar/internal/analysis"
	"github.com/dvloznov/subscription-radar/internal/config"
	"github.com/dvloznov/subscription-radar/internal/detection"
	"github.com/dvloznov/subscription-radar/internal/gcsuploader"
	infraBQ "github.com/dvloznov/subscription-radar/internal/infra/bigquery"
	"github.com/dvloznov/subscription-radar/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewConsole(os.Stderr, "info")
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Reports go to stdout, logs to stderr
	log := logger.NewConsole(os.Stderr, cfg.LogLevel)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "analyze":
		runAnalyze(log, cfg)
	case "upload":
		runUpload(log, cfg)
	case "results":
		runResults(log, cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Subscription Radar CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  analyze   Detect recurring payments in a CSV statement (local file or gs:// URI)")
	fmt.Println("  upload    Upload a CSV statement to GCS")
	fmt.Println("  results   Show detections exported to BigQuery for an analysis")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runAnalyze(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to a local CSV statement")
	gcsURI := fs.String("gcs-uri", "", "GCS URI of a CSV statement")
	backend := fs.String("clustering", cfg.ClusteringBackend, "Merchant clustering backend: gemini, lexical or none")
	mode := fs.String("classifier-mode", string(cfg.ClassifierMode), "Classifier mode: batch or per-sample")
	summary := fs.Bool("summary", false, "Print a human-readable summary instead of JSON")
	fs.Parse(os.Args[2:])

	if (*filePath == "") == (*gcsURI == "") {
		log.Fatal().Msg("Usage: cli analyze (-file PATH | -gcs-uri gs://bucket/object.csv)")
	}

	cfg.ClusteringBackend = strings.ToLower(*backend)
	cfg.ClassifierMode = detection.ParseClassifierMode(*mode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	detector, err := analysis.NewDetector(ctx, cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create detector")
	}
	svc := analysis.NewService(detector, analysis.WithStorage(gcsuploader.NewGCSStorageService(cfg.MaxUploadBytes)))

	var report *detection.Report
	if *gcsURI != "" {
		log.Info().Str("gcs_uri", *gcsURI).Msg("Analyzing statement from GCS")
		report, err = svc.AnalyzeGCS(ctx, *gcsURI)
	} else {
		log.Info().Str("file", *filePath).Msg("Analyzing local statement")
		report, err = analyzeFile(ctx, svc, *filePath)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Analysis failed")
	}

	if *summary {
		printSummary(report)
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatal().Err(err).Msg("Failed to write report")
	}
}

func analyzeFile(ctx context.Context, svc *analysis.Service, path string) (*detection.Report, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return nil, errors.New("Invalid file type. Please upload a CSV.")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()
	return svc.AnalyzeCSV(ctx, f, filepath.Base(path))
}

func printSummary(report *detection.Report) {
	fmt.Println(report.Message)
	if report.Status != detection.ReportSuccess {
		return
	}

	fmt.Printf("\n=== Subscriptions (%d) ===\n", len(report.Subscriptions))
	for i, r := range report.Subscriptions {
		fmt.Printf("\n%d. %s\n", i+1, r.UnifiedName)
		fmt.Printf("   Amount:     %.2f (avg %.2f)\n", r.LastAmount, r.AvgAmount)
		fmt.Printf("   Frequency:  %s, next %s\n", r.Frequency, r.PredictedNextDate)
		fmt.Printf("   Category:   %s\n", r.Category)
		fmt.Printf("   Status:     %s\n", r.Status)
		fmt.Printf("   Risk:       %s\n", r.Risk)
		for _, reason := range r.RiskReasons {
			fmt.Printf("               - %s\n", reason)
		}
		fmt.Printf("   Confidence: %.2f (%s)\n", r.ConfidenceScore, r.ConfidenceLabel)
	}

	fmt.Printf("\nRecurring patterns: %d\n", len(report.Patterns))
	fmt.Printf("Monthly spend:     %.2f\n", report.Insights.TotalMonthlyCost)
	fmt.Printf("Yearly spend:      %.2f\n", report.Insights.YearlyProjection)
	if report.SkippedRows > 0 {
		fmt.Printf("Skipped rows:      %d\n", report.SkippedRows)
	}
}

func runUpload(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", cfg.GCSBucket, "GCS bucket name (or set GCS_BUCKET env)")
	objectName := fs.String("object", "", "GCS object name (defaults to statements/<filename>)")
	filePath := fs.String("file", "", "Path to local CSV statement")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = "statements/" + filepath.Base(*filePath)
	}

	ctx := logger.WithContext(context.Background(), log)

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	storage := gcsuploader.NewGCSStorageService(cfg.MaxUploadBytes)
	if err := storage.UploadFile(ctx, *bucketName, *objectName, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to gs://%s/%s\n", *filePath, *bucketName, *objectName)
}

func runResults(log zerolog.Logger, cfg config.Config) {
	fs := flag.NewFlagSet("results", flag.ExitOnError)
	analysisID := fs.String("analysis-id", "", "Analysis ID printed in the report")
	project := fs.String("project", cfg.BigQueryProject, "GCP project ID (or set BIGQUERY_PROJECT env)")
	dataset := fs.String("dataset", cfg.BigQueryDataset, "BigQuery dataset ID (or set BIGQUERY_DATASET env)")
	fs.Parse(os.Args[2:])

	if *analysisID == "" || *project == "" {
		log.Fatal().Msg("Usage: cli results -analysis-id ID [-project P] [-dataset D]")
	}

	ctx := logger.WithContext(context.Background(), log)

	repo, err := infraBQ.NewResultsRepository(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create results repository")
	}
	defer repo.Close()

	rows, err := repo.ListDetections(ctx, *analysisID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list detections")
	}

	fmt.Printf("\n=== Detections for %s (%d) ===\n", *analysisID, len(rows))
	for i, row := range rows {
		fmt.Printf("\n%d. %s [%s]\n", i+1, row.UnifiedName, row.PatternType)
		fmt.Printf("   Amount:     %s (avg %s)\n", row.LastAmount.FloatString(2), row.AvgAmount.FloatString(2))
		fmt.Printf("   Frequency:  %s, next %s\n", row.Frequency, row.PredictedNextDate)
		fmt.Printf("   Risk:       %s\n", row.Risk)
		if row.Source.Valid {
			fmt.Printf("   Source:     %s\n", row.Source.StringVal)
		}
	}
	fmt.Println()
}
