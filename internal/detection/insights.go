package detection

import "sort"

// SortResults orders results by last amount, highest first. Ties keep
// their input order.
func SortResults(results []DetectionResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].LastAmount > results[j].LastAmount
	})
}

// Partition splits results into subscriptions and looser patterns,
// preserving order.
func Partition(results []DetectionResult) (subscriptions, patterns []DetectionResult) {
	subscriptions = []DetectionResult{}
	patterns = []DetectionResult{}
	for _, r := range results {
		if r.PatternType == PatternSubscription {
			subscriptions = append(subscriptions, r)
		} else {
			patterns = append(patterns, r)
		}
	}
	return subscriptions, patterns
}

// BuildInsights aggregates a result list. Costs, risk counts, categories
// and the confidence average cover subscriptions only; looser patterns are
// just counted. Categories are listed in order of first appearance.
func BuildInsights(results []DetectionResult) Insights {
	ins := Insights{Categories: []string{}}
	seen := make(map[string]bool)
	var confidenceSum float64

	for _, r := range results {
		if r.PatternType != PatternSubscription {
			ins.PatternCount++
			continue
		}
		ins.SubscriptionCount++

		if r.Frequency == FrequencyMonthly {
			ins.TotalMonthlyCost += r.LastAmount
		}
		ins.YearlyProjection += r.LastAmount * YearlyMultiplier(r.Frequency)

		switch r.Risk {
		case RiskHigh:
			ins.HighRiskCount++
		case RiskMedium:
			ins.MediumRiskCount++
		}

		if !seen[r.Category] {
			seen[r.Category] = true
			ins.Categories = append(ins.Categories, r.Category)
		}
		confidenceSum += r.ConfidenceScore
	}

	if ins.SubscriptionCount > 0 {
		ins.AverageConfidence = confidenceSum / float64(ins.SubscriptionCount)
	}
	return ins
}
