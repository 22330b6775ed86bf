package detection

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/subscription-radar/internal/domain"
)

var refNow = time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC)

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func tx(day, desc string, amount float64) domain.Transaction {
	return domain.Transaction{
		Date:           date(day),
		RawDescription: desc,
		Amount:         decimal.NewFromFloat(amount),
	}
}

// series builds n payments of amount, every `every` days starting at first.
func series(first string, every, n int, desc string, amount float64) []domain.Transaction {
	start := date(first)
	out := make([]domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Transaction{
			Date:           start.AddDays(i * every),
			RawDescription: desc,
			Amount:         decimal.NewFromFloat(amount),
		})
	}
	return out
}

func newTestDetector(opts ...Option) *Detector {
	opts = append([]Option{WithClock(func() time.Time { return refNow })}, opts...)
	return NewDetector(DefaultConfig(), IdentityClusterer{}, DefaultKeywordTables(), opts...)
}

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			return nil, errors.New("no vector for " + t)
		}
		out[i] = v
	}
	return out, nil
}

type countingRecorder struct {
	fallbacks          int
	classifierFailures int
	statuses           []string
	detections         map[PatternType]int
}

func (r *countingRecorder) ObserveAnalysis(status string, _ time.Duration) {
	r.statuses = append(r.statuses, status)
}
func (r *countingRecorder) ClusteringFallback() { r.fallbacks++ }
func (r *countingRecorder) ClassifierFailure()  { r.classifierFailures++ }
func (r *countingRecorder) Detections(p PatternType, n int) {
	if r.detections == nil {
		r.detections = make(map[PatternType]int)
	}
	r.detections[p] += n
}
