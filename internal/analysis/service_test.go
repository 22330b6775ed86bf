package analysis

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/subscription-radar/internal/detection"
	"github.com/dvloznov/subscription-radar/internal/domain"
	"github.com/dvloznov/subscription-radar/internal/jobs"
	"github.com/dvloznov/subscription-radar/internal/logger"
	"github.com/dvloznov/subscription-radar/internal/statement"
)

type fakeAnalyzer struct {
	got    []domain.Transaction
	report *detection.Report
	err    error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, txs []domain.Transaction) (*detection.Report, error) {
	f.got = txs
	if f.err != nil {
		return nil, f.err
	}
	r := *f.report
	return &r, nil
}

type fakeStorage struct {
	objects map[string]string
	err     error
}

func (f *fakeStorage) UploadFile(context.Context, string, string, string) error { return nil }

func (f *fakeStorage) FetchFromGCS(_ context.Context, uri string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[uri]
	if !ok {
		return nil, errors.New("object not found")
	}
	return []byte(data), nil
}

type fakeSink struct {
	reports []*detection.Report
	sources []string
	err     error
}

func (f *fakeSink) InsertDetections(_ context.Context, r *detection.Report, source string) error {
	f.reports = append(f.reports, r)
	f.sources = append(f.sources, source)
	return f.err
}

type skipCounter struct{ n int }

func (s *skipCounter) RowsSkipped(n int) { s.n += n }

const statementCSV = "Date,Description,Amount\n" +
	"05/01/2024,NETFLIX,649\n" +
	"05/02/2024,NETFLIX,649\n" +
	"bad,NETFLIX,649\n"

func successReport() *detection.Report {
	return &detection.Report{
		AnalysisID: "an-1",
		Status:     detection.ReportSuccess,
		Results:    []detection.DetectionResult{{UnifiedName: "NETFLIX"}},
	}
}

func TestAnalyzeCSV(t *testing.T) {
	analyzer := &fakeAnalyzer{report: successReport()}
	sink := &fakeSink{}
	skips := &skipCounter{}
	svc := NewService(analyzer, WithSink(sink), WithSkipRecorder(skips))

	report, err := svc.AnalyzeCSV(context.Background(), strings.NewReader(statementCSV), "upload.csv")
	require.NoError(t, err)

	assert.Len(t, analyzer.got, 2)
	assert.Equal(t, 1, report.SkippedRows)
	assert.Equal(t, 1, skips.n)
	require.Len(t, sink.reports, 1)
	assert.Equal(t, []string{"upload.csv"}, sink.sources)
}

func TestAnalyzeCSV_MissingColumns(t *testing.T) {
	svc := NewService(&fakeAnalyzer{report: successReport()})

	_, err := svc.AnalyzeCSV(context.Background(), strings.NewReader("Date,Amount\n01/01/2024,5\n"), "x.csv")
	var mc *statement.MissingColumnsError
	require.ErrorAs(t, err, &mc)
	assert.Equal(t, []string{"description"}, mc.Missing)
}

func TestAnalyzeCSV_SkipsExportForInsufficientData(t *testing.T) {
	sink := &fakeSink{}
	analyzer := &fakeAnalyzer{report: &detection.Report{Status: detection.ReportInsufficientData}}
	svc := NewService(analyzer, WithSink(sink))

	_, err := svc.AnalyzeCSV(context.Background(), strings.NewReader(statementCSV), "x.csv")
	require.NoError(t, err)
	assert.Empty(t, sink.reports)
}

func TestAnalyzeCSV_ExportFailureIsNotFatal(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))
	sink := &fakeSink{err: errors.New("quota exceeded")}
	svc := NewService(&fakeAnalyzer{report: successReport()}, WithSink(sink))

	report, err := svc.AnalyzeCSV(ctx, strings.NewReader(statementCSV), "x.csv")
	require.NoError(t, err)
	assert.Equal(t, detection.ReportSuccess, report.Status)
	assert.Contains(t, buf.String(), "exporting detections failed")
	assert.Contains(t, buf.String(), "quota exceeded")
}

func TestAnalyzeGCS(t *testing.T) {
	storage := &fakeStorage{objects: map[string]string{"gs://b/june.csv": statementCSV}}
	sink := &fakeSink{}
	svc := NewService(&fakeAnalyzer{report: successReport()}, WithStorage(storage), WithSink(sink))

	report, err := svc.AnalyzeGCS(context.Background(), "gs://b/june.csv")
	require.NoError(t, err)
	assert.Equal(t, "an-1", report.AnalysisID)
	assert.Equal(t, []string{"gs://b/june.csv"}, sink.sources)

	_, err = svc.AnalyzeGCS(context.Background(), "gs://b/missing.csv")
	assert.Error(t, err)

	_, err = NewService(&fakeAnalyzer{}).AnalyzeGCS(context.Background(), "gs://b/june.csv")
	assert.Error(t, err)
}

func TestHandleJob(t *testing.T) {
	storage := &fakeStorage{objects: map[string]string{
		"gs://b/june.csv": statementCSV,
		"gs://b/bad.csv":  "Date,Merchant\n",
	}}
	svc := NewService(&fakeAnalyzer{report: successReport()}, WithStorage(storage))
	ctx := context.Background()

	job := &jobs.AnalyzeStatementJob{JobID: "j1", GCSURI: "gs://b/june.csv", CreatedAt: time.Now()}
	require.NoError(t, svc.HandleJob(ctx, job))
	require.NotNil(t, job.Report)
	assert.Equal(t, 1, job.Report.SkippedRows)

	bad := &jobs.AnalyzeStatementJob{JobID: "j2", GCSURI: "gs://b/bad.csv"}
	err := svc.HandleJob(ctx, bad)
	require.Error(t, err)
	assert.True(t, jobs.IsPermanent(err))
	assert.ErrorIs(t, err, statement.ErrMissingColumns)
	assert.Nil(t, bad.Report)

	missing := &jobs.AnalyzeStatementJob{JobID: "j3", GCSURI: "gs://b/none.csv"}
	err = svc.HandleJob(ctx, missing)
	require.Error(t, err)
	assert.False(t, jobs.IsPermanent(err))
}

func TestHandleJob_AnalyzerFailureIsPermanent(t *testing.T) {
	storage := &fakeStorage{objects: map[string]string{"gs://b/june.csv": statementCSV}}
	svc := NewService(&fakeAnalyzer{err: errors.New("internal error")}, WithStorage(storage))

	err := svc.HandleJob(context.Background(), &jobs.AnalyzeStatementJob{JobID: "j", GCSURI: "gs://b/june.csv"})
	require.Error(t, err)
	assert.True(t, jobs.IsPermanent(err))
}

func TestAnalyzeCSV_WithDetector(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	det := detection.NewDetector(detection.DefaultConfig(), nil, detection.DefaultKeywordTables(),
		detection.WithClock(func() time.Time { return now }))
	svc := NewService(det)

	var b strings.Builder
	b.WriteString("Date,Description,Amount\n")
	for _, d := range []string{"05/01/2024", "05/02/2024", "05/03/2024", "05/04/2024", "05/05/2024", "05/06/2024"} {
		b.WriteString(d + ",NETFLIX,649\n")
	}

	report, err := svc.AnalyzeCSV(context.Background(), strings.NewReader(b.String()), "netflix.csv")
	require.NoError(t, err)
	assert.Equal(t, detection.ReportSuccess, report.Status)
	assert.Equal(t, 6, report.TransactionCount)
	assert.Equal(t, 1, report.MerchantCount)
	assert.Equal(t, 0, report.SkippedRows)
}
