package detection

import (
	"cloud.google.com/go/civil"

	"github.com/dvloznov/subscription-radar/internal/domain"
)

// RiskTier is the financial exposure of a recurring payment. Tiers only
// move upward while one result is scored.
type RiskTier string

const (
	RiskSafe   RiskTier = "Safe"
	RiskMedium RiskTier = "Medium"
	RiskHigh   RiskTier = "High"
)

func (r RiskTier) rank() int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Raise returns the higher of r and to.
func (r RiskTier) Raise(to RiskTier) RiskTier {
	if to.rank() > r.rank() {
		return to
	}
	return r
}

// Escalate moves r one step up (Safe→Medium→High).
func (r RiskTier) Escalate() RiskTier {
	switch r {
	case RiskSafe:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// ConfidenceLabel is the three-tier rendering of a confidence score.
type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "High"
	ConfidenceMedium ConfidenceLabel = "Medium"
	ConfidenceLow    ConfidenceLabel = "Low"
)

// PatternType separates true subscriptions from looser recurring spend.
type PatternType string

const (
	PatternSubscription PatternType = "subscription"
	PatternLoose        PatternType = "pattern"
)

const (
	StatusActive              = "Active"
	StatusPotentiallyInactive = "Potentially Inactive"
)

// Report statuses.
const (
	ReportSuccess          = "success"
	ReportInsufficientData = "insufficient_data"
)

// Frequency labels.
const (
	FrequencyWeekly     = "Weekly"
	FrequencyMonthly    = "Monthly"
	FrequencyQuarterly  = "Quarterly"
	FrequencyHalfYearly = "Half-yearly"
	FrequencyYearly     = "Yearly"
)

// NormalizedTransaction is a transaction plus its cleaned merchant label.
type NormalizedTransaction struct {
	domain.Transaction
	CleanMerchant string
}

// MerchantCluster groups the labels that denote one real-world vendor.
// UnifiedName is always one of MemberLabels.
type MerchantCluster struct {
	UnifiedName  string
	MemberLabels []string
}

// MerchantGroup holds every transaction attributed to one unified vendor,
// ordered by date ascending.
type MerchantGroup struct {
	MerchantCluster
	Transactions []NormalizedTransaction
}

// DetectionResult is the scored outcome for one eligible merchant group.
type DetectionResult struct {
	UnifiedName       string          `json:"unified_name"`
	MemberLabels      []string        `json:"member_labels"`
	LastAmount        float64         `json:"last_amount"`
	AvgAmount         float64         `json:"avg_amount"`
	LastDate          civil.Date      `json:"last_date"`
	PredictedNextDate civil.Date      `json:"predicted_next_date"`
	Frequency         string          `json:"frequency"`
	IntervalDays      float64         `json:"interval_days"`
	Category          string          `json:"category"`
	Risk              RiskTier        `json:"risk"`
	RiskReasons       []string        `json:"risk_reasons"`
	ConfidenceScore   float64         `json:"confidence_score"`
	ConfidenceLabel   ConfidenceLabel `json:"confidence_label"`
	Status            string          `json:"status"`
	PatternType       PatternType     `json:"pattern_type"`
	TransactionCount  int             `json:"transaction_count"`
	MLPrediction      int             `json:"ml_prediction"`
	MLScore           float64         `json:"ml_score"`
}

// Insights summarises the final result list.
type Insights struct {
	TotalMonthlyCost  float64  `json:"total_monthly_cost"`
	YearlyProjection  float64  `json:"yearly_projection"`
	SubscriptionCount int      `json:"subscription_count"`
	PatternCount      int      `json:"pattern_count"`
	HighRiskCount     int      `json:"high_risk_count"`
	MediumRiskCount   int      `json:"medium_risk_count"`
	Categories        []string `json:"categories"`
	AverageConfidence float64  `json:"average_confidence"`
}

// Report is everything one analysis hands back to its caller.
type Report struct {
	AnalysisID       string            `json:"analysis_id"`
	Status           string            `json:"status"`
	Message          string            `json:"message"`
	Results          []DetectionResult `json:"results"`
	Subscriptions    []DetectionResult `json:"subscriptions"`
	Patterns         []DetectionResult `json:"patterns"`
	Insights         Insights          `json:"insights"`
	TransactionCount int               `json:"transaction_count"`
	MerchantCount    int               `json:"merchant_count"`
	SkippedRows      int               `json:"skipped_rows"`
}
