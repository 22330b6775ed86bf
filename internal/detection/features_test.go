package detection

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupOf(name string, txs ...[]NormalizedTransaction) MerchantGroup {
	g := MerchantGroup{MerchantCluster: MerchantCluster{UnifiedName: name, MemberLabels: []string{name}}}
	for _, part := range txs {
		g.Transactions = append(g.Transactions, part...)
	}
	return g
}

func normalized(name string, raw ...[]interface{}) []NormalizedTransaction {
	out := make([]NormalizedTransaction, 0, len(raw))
	for _, r := range raw {
		out = append(out, NormalizedTransaction{Transaction: tx(r[0].(string), name, r[1].(float64)), CleanMerchant: name})
	}
	return out
}

func TestExtractFeatures_MonthlySeries(t *testing.T) {
	var txs []NormalizedTransaction
	for _, tr := range series("2024-01-01", 30, 6, "NETFLIX", 649) {
		txs = append(txs, NormalizedTransaction{Transaction: tr, CleanMerchant: "NETFLIX"})
	}

	fv, err := ExtractFeatures(groupOf("NETFLIX", txs), date("2024-07-01"))
	require.NoError(t, err)

	assert.Equal(t, 6, fv.TransactionCount)
	assert.InDelta(t, 30, fv.AvgIntervalDays, 1e-9)
	assert.InDelta(t, 0, fv.IntervalStd, 1e-9)
	assert.InDelta(t, 0, fv.IntervalCV, 1e-9)
	assert.InDelta(t, 649, fv.AvgAmount, 1e-9)
	assert.InDelta(t, 1, fv.AmountConsistency, 1e-9)
	assert.InDelta(t, 3894, fv.TotalSpent, 1e-9)
	assert.Equal(t, 32, fv.DaysSinceLast)
	assert.Equal(t, date("2024-05-30"), fv.LastDate)
	assert.True(t, fv.IsMonthly)
	assert.False(t, fv.IsYearly)
	assert.False(t, fv.IsWeekly)
	assert.Len(t, fv.Array(), len(FeatureNames))
}

func TestExtractFeatures_SortsByDate(t *testing.T) {
	txs := normalized("GYM",
		[]interface{}{"2024-03-01", 1500.0},
		[]interface{}{"2024-01-01", 1000.0},
		[]interface{}{"2024-02-01", 1200.0},
	)

	fv, err := ExtractFeatures(groupOf("GYM", txs), date("2024-03-10"))
	require.NoError(t, err)

	assert.Equal(t, date("2024-03-01"), fv.LastDate)
	assert.InDelta(t, 1500, fv.LastAmount, 1e-9)
	assert.InDelta(t, 30, fv.AvgIntervalDays, 1e-9) // 31 and 29 days
	assert.InDelta(t, 1500, fv.MaxAmount, 1e-9)
	assert.InDelta(t, 1000, fv.MinAmount, 1e-9)
	assert.Equal(t, 9, fv.DaysSinceLast)
}

func TestExtractFeatures_SampleStandardDeviation(t *testing.T) {
	txs := normalized("X",
		[]interface{}{"2024-01-01", 10.0},
		[]interface{}{"2024-01-11", 20.0},
		[]interface{}{"2024-02-10", 30.0},
	)

	fv, err := ExtractFeatures(groupOf("X", txs), date("2024-02-10"))
	require.NoError(t, err)

	// intervals 10 and 30: mean 20, n-1 std sqrt(200)
	assert.InDelta(t, 20, fv.AvgIntervalDays, 1e-9)
	assert.InDelta(t, 14.142135623730951, fv.IntervalStd, 1e-9)
	assert.InDelta(t, 0.7071067811865476, fv.IntervalCV, 1e-9)
	assert.InDelta(t, 10, fv.AmountStd, 1e-9)
	assert.InDelta(t, 0.5, fv.AmountConsistency, 1e-9)
}

func TestExtractFeatures_InsufficientHistory(t *testing.T) {
	txs := normalized("X",
		[]interface{}{"2024-01-01", 10.0},
		[]interface{}{"2024-02-01", 10.0},
	)

	_, err := ExtractFeatures(groupOf("X", txs), date("2024-03-01"))
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestExtractFeatures_ZeroMeanAmountHasZeroConsistency(t *testing.T) {
	txs := normalized("X",
		[]interface{}{"2024-01-01", 0.0},
		[]interface{}{"2024-02-01", 0.0},
		[]interface{}{"2024-03-01", 0.0},
	)
	for i := range txs {
		txs[i].Amount = decimal.Zero
	}

	fv, err := ExtractFeatures(groupOf("X", txs), date("2024-03-01"))
	require.NoError(t, err)
	assert.Zero(t, fv.AmountConsistency)
	for i, v := range fv.Array() {
		assert.False(t, math.IsNaN(v), "feature %s is NaN", FeatureNames[i])
	}
}

func TestExtractFeatures_SameDayIntervals(t *testing.T) {
	txs := normalized("X",
		[]interface{}{"2024-01-01", 5.0},
		[]interface{}{"2024-01-01", 5.0},
		[]interface{}{"2024-01-01", 5.0},
	)

	fv, err := ExtractFeatures(groupOf("X", txs), date("2024-01-01"))
	require.NoError(t, err)
	assert.Zero(t, fv.AvgIntervalDays)
	assert.Zero(t, fv.IntervalCV)
}

func TestFinite(t *testing.T) {
	assert.Equal(t, 0.0, finite(nan()))
	assert.Equal(t, 1.0, finite(inf(1)))
	assert.Equal(t, 0.0, finite(inf(-1)))
	assert.Equal(t, 2.5, finite(2.5))
}
