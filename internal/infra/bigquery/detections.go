package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/subscription-radar/internal/detection"
)

// DetectionRow is one detected recurring payment as stored in
// <dataset>.recurring_detections.
type DetectionRow struct {
	AnalysisID string              `bigquery:"analysis_id"` // REQUIRED
	Source     bigquery.NullString `bigquery:"source"`      // NULLABLE (upload filename or gs:// URI)

	UnifiedName  string   `bigquery:"unified_name"`  // REQUIRED
	MemberLabels []string `bigquery:"member_labels"` // REPEATED STRING

	LastAmount *big.Rat `bigquery:"last_amount"` // REQUIRED NUMERIC
	AvgAmount  *big.Rat `bigquery:"avg_amount"`  // REQUIRED NUMERIC

	LastDate          civil.Date `bigquery:"last_date"`
	PredictedNextDate civil.Date `bigquery:"predicted_next_date"`

	Frequency    string  `bigquery:"frequency"`
	IntervalDays float64 `bigquery:"interval_days"`
	Category     string  `bigquery:"category"`

	Risk        string   `bigquery:"risk"`
	RiskReasons []string `bigquery:"risk_reasons"` // REPEATED STRING

	ConfidenceScore float64 `bigquery:"confidence_score"`
	ConfidenceLabel string  `bigquery:"confidence_label"`
	Status          string  `bigquery:"status"`
	PatternType     string  `bigquery:"pattern_type"`

	TransactionCount int64   `bigquery:"transaction_count"`
	MLPrediction     int64   `bigquery:"ml_prediction"`
	MLScore          float64 `bigquery:"ml_score"`

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// DetectionSchema returns the table schema inferred from DetectionRow.
func DetectionSchema() (bigquery.Schema, error) {
	return bigquery.InferSchema(DetectionRow{})
}

// DetectionRowsFromReport flattens a report's results into rows.
// Amounts are rounded to paise/cents before conversion to NUMERIC.
func DetectionRowsFromReport(report *detection.Report, source string, createdAt time.Time) []*DetectionRow {
	if report == nil {
		return nil
	}

	rows := make([]*DetectionRow, 0, len(report.Results))
	for _, r := range report.Results {
		row := &DetectionRow{
			AnalysisID:        report.AnalysisID,
			UnifiedName:       r.UnifiedName,
			MemberLabels:      append([]string(nil), r.MemberLabels...),
			LastAmount:        toNumeric(r.LastAmount),
			AvgAmount:         toNumeric(r.AvgAmount),
			LastDate:          r.LastDate,
			PredictedNextDate: r.PredictedNextDate,
			Frequency:         r.Frequency,
			IntervalDays:      r.IntervalDays,
			Category:          r.Category,
			Risk:              string(r.Risk),
			RiskReasons:       append([]string(nil), r.RiskReasons...),
			ConfidenceScore:   r.ConfidenceScore,
			ConfidenceLabel:   string(r.ConfidenceLabel),
			Status:            r.Status,
			PatternType:       string(r.PatternType),
			TransactionCount:  int64(r.TransactionCount),
			MLPrediction:      int64(r.MLPrediction),
			MLScore:           r.MLScore,
			CreatedTS:         createdAt,
		}
		if source != "" {
			row.Source = bigquery.NullString{StringVal: source, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows
}

func toNumeric(v float64) *big.Rat {
	return decimal.NewFromFloat(v).Round(2).Rat()
}
