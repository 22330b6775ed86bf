package detection

import (
	"fmt"
	"math"

	"cloud.google.com/go/civil"
)

// Confidence combines the classifier score with regularity bonuses and
// clamps the result to [0, 1].
func Confidence(mlScore float64, fv FeatureVector) float64 {
	score := (mlScore + 1) / 2 * 0.5

	switch {
	case fv.IntervalCV < 0.2:
		score += 0.25
	case fv.IntervalCV < 0.3:
		score += 0.15
	case fv.IntervalCV < 0.5:
		score += 0.10
	}

	switch {
	case fv.AmountConsistency > 0.85:
		score += 0.15
	case fv.AmountConsistency > 0.70:
		score += 0.10
	}

	switch {
	case fv.TransactionCount >= 5:
		score += 0.10
	case fv.TransactionCount >= 3:
		score += 0.05
	}

	return math.Max(0, math.Min(1, score))
}

// LabelFor maps a confidence score to its label.
func LabelFor(score float64) ConfidenceLabel {
	switch {
	case score >= 0.5:
		return ConfidenceHigh
	case score >= 0.25:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

type frequencyBand struct {
	label    string
	min, max float64
}

var frequencyBands = []frequencyBand{
	{FrequencyMonthly, 25, 35},
	{FrequencyYearly, 360, 375},
	{FrequencyWeekly, 6, 8},
	{FrequencyQuarterly, 85, 95},
	{FrequencyHalfYearly, 175, 185},
}

// FrequencyLabel names the cadence of a mean interval. Intervals outside
// every band render as "Every N days".
func FrequencyLabel(meanInterval float64) string {
	for _, b := range frequencyBands {
		if meanInterval >= b.min && meanInterval <= b.max {
			return b.label
		}
	}
	return fmt.Sprintf("Every %d days", int(math.Round(meanInterval)))
}

// IsNamedFrequency reports whether label is one of the fixed bands.
func IsNamedFrequency(label string) bool {
	for _, b := range frequencyBands {
		if b.label == label {
			return true
		}
	}
	return false
}

// PatternTypeFor classifies a result as a subscription or a looser pattern.
func PatternTypeFor(label ConfidenceLabel, frequency string) PatternType {
	if label == ConfidenceHigh || (label == ConfidenceMedium && IsNamedFrequency(frequency)) {
		return PatternSubscription
	}
	return PatternLoose
}

// ActivityStatus flags a merchant whose last payment is overdue by more
// than graceDays past its mean interval, demoting High confidence to Medium.
func ActivityStatus(fv FeatureVector, graceDays int, label ConfidenceLabel) (string, ConfidenceLabel) {
	if float64(fv.DaysSinceLast) > fv.AvgIntervalDays+float64(graceDays) {
		if label == ConfidenceHigh {
			label = ConfidenceMedium
		}
		return StatusPotentiallyInactive, label
	}
	return StatusActive, label
}

// PredictNextDate projects the next payment one mean interval after the last.
func PredictNextDate(fv FeatureVector) civil.Date {
	return fv.LastDate.AddDays(int(math.Round(fv.AvgIntervalDays)))
}

// YearlyMultiplier converts one payment at the given frequency into a
// yearly amount. Irregular cadences count once.
func YearlyMultiplier(frequency string) float64 {
	switch frequency {
	case FrequencyWeekly:
		return 52
	case FrequencyMonthly:
		return 12
	case FrequencyQuarterly:
		return 4
	case FrequencyHalfYearly:
		return 2
	default:
		return 1
	}
}
