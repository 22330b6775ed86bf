package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/subscription-radar/internal/detection"
	"github.com/dvloznov/subscription-radar/internal/jobs"
	"github.com/dvloznov/subscription-radar/internal/jobs/inmemory"
	"github.com/dvloznov/subscription-radar/internal/logger"
	"github.com/dvloznov/subscription-radar/internal/statement"
)

type stubAnalyzer struct {
	source string
	body   string
	err    error
}

func (s *stubAnalyzer) AnalyzeCSV(_ context.Context, r io.Reader, source string) (*detection.Report, error) {
	data, _ := io.ReadAll(r)
	s.body = string(data)
	s.source = source
	if s.err != nil {
		return nil, s.err
	}
	return &detection.Report{
		AnalysisID:    "an-1",
		Status:        detection.ReportSuccess,
		Message:       "Found 0 subscriptions and 0 recurring patterns",
		Results:       []detection.DetectionResult{},
		Subscriptions: []detection.DetectionResult{},
		Patterns:      []detection.DetectionResult{},
		Insights:      detection.Insights{Categories: []string{}},
	}, nil
}

type testServer struct {
	router   http.Handler
	analyzer *stubAnalyzer
	store    *inmemory.Store
	queue    *inmemory.Queue
}

func newTestServer(t *testing.T, maxUpload int64) *testServer {
	t.Helper()
	log := logger.NewWithWriter(io.Discard)
	analyzer := &stubAnalyzer{}
	store := inmemory.NewStore()
	queue := inmemory.NewQueue(10, store)
	t.Cleanup(func() { _ = queue.Close() })

	router := NewRouter(Routes{
		Analyze: NewAnalyzeHandler(analyzer, maxUpload, log),
		Jobs:    NewJobsHandler(store, queue, 2, log),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})
	return &testServer{router: router, analyzer: analyzer, store: store, queue: queue}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, path, field, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, 0)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Subscription Detection API is running", decode(t, rec)["message"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyze_Success(t *testing.T) {
	for _, path := range []string{"/analyze", "/api/analyze"} {
		t.Run(path, func(t *testing.T) {
			s := newTestServer(t, 0)
			rec := s.do(uploadRequest(t, path, "file", "June.CSV", "Date,Description,Amount\n"))

			require.Equal(t, http.StatusOK, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "success", body["status"])
			assert.Equal(t, "an-1", body["analysis_id"])
			assert.Equal(t, "June.CSV", s.analyzer.source)
			assert.Equal(t, "Date,Description,Amount\n", s.analyzer.body)
		})
	}
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		analyzeErr error
		wantStatus int
		wantError  string
	}{
		{
			name:       "wrong extension",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "/analyze", "file", "statement.pdf", "x") },
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid file type. Please upload a CSV.",
		},
		{
			name:       "missing file field",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "/analyze", "upload", "a.csv", "x") },
			wantStatus: http.StatusBadRequest,
			wantError:  "A CSV file is required in the 'file' field",
		},
		{
			name:       "missing columns",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "/analyze", "file", "a.csv", "x") },
			analyzeErr: &statement.MissingColumnsError{Missing: []string{"date", "amount"}},
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing columns: ['date', 'amount']. Please ensure CSV has Date, Description, and Debit Amount.",
		},
		{
			name:       "unexpected failure",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "/analyze", "file", "a.csv", "x") },
			analyzeErr: errors.New("Detector.Analyze: internal error: boom"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to analyze statement",
		},
		{
			name:       "wrong method",
			req:        func(t *testing.T) *http.Request { return httptest.NewRequest(http.MethodGet, "/analyze", nil) },
			wantStatus: http.StatusMethodNotAllowed,
			wantError:  "Method not allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, 0)
			s.analyzer.err = tt.analyzeErr

			rec := s.do(tt.req(t))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decode(t, rec)["error"])
		})
	}
}

func TestAnalyze_TooLarge(t *testing.T) {
	s := newTestServer(t, 64)
	rec := s.do(uploadRequest(t, "/analyze", "file", "a.csv", strings.Repeat("x", 1024)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestEnqueueAnalysis(t *testing.T) {
	s := newTestServer(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze/gcs", strings.NewReader(`{"gcs_uri":"gs://bucket/june.csv"}`))
	rec := s.do(req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "pending", body["status"])
	jobID, _ := body["job_id"].(string)
	require.NotEmpty(t, jobID)

	job, err := s.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/june.csv", job.GCSURI)
	assert.Equal(t, 2, job.MaxRetries)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jobID, decode(t, rec)["job_id"])
}

func TestEnqueueAnalysis_BadRequest(t *testing.T) {
	s := newTestServer(t, 0)

	for _, payload := range []string{`not json`, `{}`, `{"gcs_uri":"https://example.com/a.csv"}`, `{"gcs_uri":"gs://bucket"}`} {
		rec := s.do(httptest.NewRequest(http.MethodPost, "/api/analyze/gcs", strings.NewReader(payload)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
	}
}

func TestJobs_ListAndNotFound(t *testing.T) {
	s := newTestServer(t, 0)
	ctx := context.Background()
	require.NoError(t, s.store.SaveJob(ctx, &jobs.AnalyzeStatementJob{JobID: "a", GCSURI: "gs://b/a.csv", Status: jobs.JobStatusCompleted}))
	require.NoError(t, s.store.SaveJob(ctx, &jobs.AnalyzeStatementJob{JobID: "b", GCSURI: "gs://b/b.csv", Status: jobs.JobStatusFailed}))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/jobs?status=failed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/jobs/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics\n", rec.Body.String())
}
