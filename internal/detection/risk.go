package detection

import "fmt"

// RiskPolicy holds the thresholds of AssessRisk.
type RiskPolicy struct {
	PriceIncreaseRatio float64
	HighValueThreshold float64
	HighValueCeiling   float64
}

// RiskPolicyFrom extracts the risk thresholds from a detector config.
func RiskPolicyFrom(cfg Config) RiskPolicy {
	return RiskPolicy{
		PriceIncreaseRatio: cfg.PriceIncreaseRatio,
		HighValueThreshold: cfg.HighValueThreshold,
		HighValueCeiling:   cfg.HighValueCeiling,
	}
}

// AssessRisk grades one merchant's exposure. Rules apply in order and can
// only raise the tier.
func (p RiskPolicy) AssessRisk(lastAmount, avgAmount float64, category string) (RiskTier, []string) {
	tier := RiskSafe
	reasons := []string{}

	if avgAmount > 0 && lastAmount > avgAmount*p.PriceIncreaseRatio {
		increase := (lastAmount - avgAmount) / avgAmount * 100
		tier = tier.Raise(RiskMedium)
		reasons = append(reasons, fmt.Sprintf("Price increased by %.0f%% (%.2f vs average %.2f)", increase, lastAmount, avgAmount))
	}

	if lastAmount > p.HighValueThreshold && category == "Entertainment" {
		tier = tier.Escalate()
		reasons = append(reasons, fmt.Sprintf("High-value entertainment subscription (%.2f)", lastAmount))
	}

	if lastAmount > p.HighValueCeiling {
		tier = tier.Raise(RiskHigh)
		reasons = append(reasons, fmt.Sprintf("Expensive subscription: %.2f exceeds %.2f", lastAmount, p.HighValueCeiling))
	}

	return tier, reasons
}
