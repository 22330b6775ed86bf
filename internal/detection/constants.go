package detection

// Default thresholds for the detection pipeline. Changing any of them changes
// which merchants surface, so they are grouped here and copied into Config.
const (
	// DefaultMinTransactions is the batch-wide minimum below which no analysis runs.
	DefaultMinTransactions = 3

	// DefaultMinGroupSize is the per-merchant minimum for recurrence analysis.
	DefaultMinGroupSize = 3

	// DefaultClusterEps is the cosine-distance neighbourhood radius for DBSCAN.
	DefaultClusterEps = 0.30

	// DefaultClusterMinSamples is the DBSCAN core-point size, the point itself included.
	DefaultClusterMinSamples = 2

	// Isolation forest hyperparameters.
	DefaultForestTrees         = 100
	DefaultForestMaxSamples    = 256
	DefaultForestContamination = 0.15
	DefaultForestSeed          = 42

	// Mean interval window outside of which a merchant is disqualified.
	DefaultMinIntervalDays = 20.0
	DefaultMaxIntervalDays = 400.0

	// DefaultMinConfidence filters out near-zero results.
	DefaultMinConfidence = 0.05

	// DefaultGraceDays is added to the mean interval before a merchant counts as inactive.
	DefaultGraceDays = 7

	// DefaultPriceIncreaseRatio flags a last payment above 115% of the average.
	DefaultPriceIncreaseRatio = 1.15

	// DefaultHighValueThreshold escalates expensive entertainment spend one step.
	DefaultHighValueThreshold = 1000.0

	// DefaultHighValueCeiling forces High risk regardless of category.
	DefaultHighValueCeiling = 2000.0
)

// Config holds every tunable of one Detector.
type Config struct {
	MinTransactions    int
	MinGroupSize       int
	ClusterEps         float64
	ClusterMinSamples  int
	Forest             ForestConfig
	ClassifierMode     ClassifierMode
	MinIntervalDays    float64
	MaxIntervalDays    float64
	MinConfidence      float64
	GraceDays          int
	PriceIncreaseRatio float64
	HighValueThreshold float64
	HighValueCeiling   float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinTransactions:   DefaultMinTransactions,
		MinGroupSize:      DefaultMinGroupSize,
		ClusterEps:        DefaultClusterEps,
		ClusterMinSamples: DefaultClusterMinSamples,
		Forest: ForestConfig{
			Trees:         DefaultForestTrees,
			MaxSamples:    DefaultForestMaxSamples,
			Contamination: DefaultForestContamination,
			Seed:          DefaultForestSeed,
		},
		ClassifierMode:     ClassifierModeBatch,
		MinIntervalDays:    DefaultMinIntervalDays,
		MaxIntervalDays:    DefaultMaxIntervalDays,
		MinConfidence:      DefaultMinConfidence,
		GraceDays:          DefaultGraceDays,
		PriceIncreaseRatio: DefaultPriceIncreaseRatio,
		HighValueThreshold: DefaultHighValueThreshold,
		HighValueCeiling:   DefaultHighValueCeiling,
	}
}
