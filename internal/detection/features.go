package detection

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"cloud.google.com/go/civil"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientHistory is returned when a merchant has fewer than two
// payment intervals.
var ErrInsufficientHistory = errors.New("insufficient payment history")

// Interval bands used for the boolean periodicity features.
const (
	monthlyMinDays = 25
	monthlyMaxDays = 35
	yearlyMinDays  = 360
	yearlyMaxDays  = 375
	weeklyMinDays  = 6
	weeklyMaxDays  = 8
)

// FeatureNames lists feature vector columns in classifier order.
var FeatureNames = []string{
	"transaction_count",
	"avg_interval_days",
	"interval_std",
	"interval_cv",
	"avg_amount",
	"amount_std",
	"amount_consistency",
	"total_spent",
	"max_amount",
	"min_amount",
	"day_of_month_std",
	"days_since_last",
	"is_monthly",
	"is_yearly",
	"is_weekly",
}

// FeatureVector summarises one merchant's payment history.
type FeatureVector struct {
	TransactionCount  int     `json:"transaction_count"`
	AvgIntervalDays   float64 `json:"avg_interval_days"`
	IntervalStd       float64 `json:"interval_std"`
	IntervalCV        float64 `json:"interval_cv"`
	AvgAmount         float64 `json:"avg_amount"`
	AmountStd         float64 `json:"amount_std"`
	AmountConsistency float64 `json:"amount_consistency"`
	TotalSpent        float64 `json:"total_spent"`
	MaxAmount         float64 `json:"max_amount"`
	MinAmount         float64 `json:"min_amount"`
	DayOfMonthStd     float64 `json:"day_of_month_std"`
	DaysSinceLast     int     `json:"days_since_last"`
	IsMonthly         bool    `json:"is_monthly"`
	IsYearly          bool    `json:"is_yearly"`
	IsWeekly          bool    `json:"is_weekly"`

	LastAmount float64    `json:"last_amount"`
	LastDate   civil.Date `json:"last_date"`
}

// Array returns the classifier input in FeatureNames order.
func (f FeatureVector) Array() []float64 {
	return []float64{
		float64(f.TransactionCount),
		f.AvgIntervalDays,
		f.IntervalStd,
		f.IntervalCV,
		f.AvgAmount,
		f.AmountStd,
		f.AmountConsistency,
		f.TotalSpent,
		f.MaxAmount,
		f.MinAmount,
		f.DayOfMonthStd,
		float64(f.DaysSinceLast),
		boolFloat(f.IsMonthly),
		boolFloat(f.IsYearly),
		boolFloat(f.IsWeekly),
	}
}

// ExtractFeatures computes the feature vector of one merchant group as of
// now. Transactions are sorted by date before intervals are taken.
func ExtractFeatures(group MerchantGroup, now civil.Date) (FeatureVector, error) {
	txs := make([]NormalizedTransaction, len(group.Transactions))
	copy(txs, group.Transactions)
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })

	if len(txs) < 3 {
		return FeatureVector{}, fmt.Errorf("ExtractFeatures: %s has %d transactions: %w",
			group.UnifiedName, len(txs), ErrInsufficientHistory)
	}

	intervals := make([]float64, 0, len(txs)-1)
	for i := 1; i < len(txs); i++ {
		intervals = append(intervals, float64(txs[i].Date.DaysSince(txs[i-1].Date)))
	}
	amounts := make([]float64, len(txs))
	days := make([]float64, len(txs))
	for i, tx := range txs {
		amounts[i] = tx.AmountFloat()
		days[i] = float64(tx.Date.Day)
	}

	last := txs[len(txs)-1]
	avgInterval := stat.Mean(intervals, nil)
	intervalStd := sampleStd(intervals)
	avgAmount := stat.Mean(amounts, nil)
	amountStd := sampleStd(amounts)

	fv := FeatureVector{
		TransactionCount:  len(txs),
		AvgIntervalDays:   avgInterval,
		IntervalStd:       intervalStd,
		IntervalCV:        ratioOrZero(intervalStd, avgInterval),
		AvgAmount:         avgAmount,
		AmountStd:         amountStd,
		AmountConsistency: 0,
		TotalSpent:        floats.Sum(amounts),
		MaxAmount:         floats.Max(amounts),
		MinAmount:         floats.Min(amounts),
		DayOfMonthStd:     sampleStd(days),
		DaysSinceLast:     now.DaysSince(last.Date),
		IsMonthly:         avgInterval >= monthlyMinDays && avgInterval <= monthlyMaxDays,
		IsYearly:          avgInterval >= yearlyMinDays && avgInterval <= yearlyMaxDays,
		IsWeekly:          avgInterval >= weeklyMinDays && avgInterval <= weeklyMaxDays,
		LastAmount:        last.AmountFloat(),
		LastDate:          last.Date,
	}
	if avgAmount > 0 {
		fv.AmountConsistency = 1 - amountStd/avgAmount
	}

	return fv.sanitize(), nil
}

// sanitize replaces non-finite values: NaN becomes 0, -Inf becomes 0 and
// +Inf becomes 1. The coefficient of variation is always 0 when non-finite.
func (f FeatureVector) sanitize() FeatureVector {
	if math.IsNaN(f.IntervalCV) || math.IsInf(f.IntervalCV, 0) {
		f.IntervalCV = 0
	}
	for _, p := range []*float64{
		&f.AvgIntervalDays, &f.IntervalStd, &f.AvgAmount, &f.AmountStd,
		&f.AmountConsistency, &f.TotalSpent, &f.MaxAmount, &f.MinAmount, &f.DayOfMonthStd,
	} {
		*p = finite(*p)
	}
	return f
}

func finite(x float64) float64 {
	switch {
	case math.IsNaN(x), math.IsInf(x, -1):
		return 0
	case math.IsInf(x, 1):
		return 1
	default:
		return x
	}
}

// sampleStd is the n-1 standard deviation; a single value has zero spread.
func sampleStd(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.StdDev(x, nil)
}

func ratioOrZero(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
