package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/subscription-radar/internal/api/middleware"
	"github.com/dvloznov/subscription-radar/internal/detection"
	"github.com/dvloznov/subscription-radar/internal/logger"
	"github.com/dvloznov/subscription-radar/internal/statement"
)

// StatementAnalyzer analyzes one CSV statement.
type StatementAnalyzer interface {
	AnalyzeCSV(ctx context.Context, r io.Reader, source string) (*detection.Report, error)
}

// AnalyzeHandler handles statement upload endpoints.
type AnalyzeHandler struct {
	analyzer       StatementAnalyzer
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(analyzer StatementAnalyzer, maxUploadBytes int64, log zerolog.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		analyzer:       analyzer,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// Root handles GET /
func (h *AnalyzeHandler) Root(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Subscription Detection API is running",
	})
}

// Analyze handles POST /analyze and POST /api/analyze with a multipart
// "file" field holding a CSV statement.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "A CSV file is required in the 'file' field")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid file type. Please upload a CSV.")
		return
	}

	report, err := h.analyzer.AnalyzeCSV(ctx, file, filename)
	if err != nil {
		var missing *statement.MissingColumnsError
		if errors.As(err, &missing) {
			middleware.WriteError(w, http.StatusBadRequest, missing.Error())
			return
		}
		log.Error().Err(err).Str("filename", filename).Msg("Failed to analyze statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to analyze statement")
		return
	}

	log.Info().
		Str("filename", filename).
		Str("analysis_id", report.AnalysisID).
		Str("status", report.Status).
		Int("subscriptions", len(report.Subscriptions)).
		Msg("Statement analyzed")

	middleware.WriteJSON(w, http.StatusOK, report)
}
