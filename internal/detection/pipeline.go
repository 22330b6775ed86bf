package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/subscription-radar/internal/domain"
	"github.com/dvloznov/subscription-radar/internal/logger"
)

// PipelineStep represents a single step in the detection pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Now          civil.Date
	Transactions []domain.Transaction
	Normalized   []NormalizedTransaction
	Labels       []string          // distinct clean labels, first-seen order
	Mapping      map[string]string // clean label -> unified name
	Groups       []*MerchantGroup
	Candidates   []*candidate
	Results      []DetectionResult
}

type candidate struct {
	group          *MerchantGroup
	features       FeatureVector
	classification Classification
}

// Step 1: NormalizeStep cleans every raw description.
type NormalizeStep struct {
	Normalizer *Normalizer
}

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	seen := make(map[string]bool)
	state.Normalized = make([]NormalizedTransaction, 0, len(state.Transactions))
	for _, tx := range state.Transactions {
		clean := s.Normalizer.Normalize(tx.RawDescription)
		if clean == "" {
			continue
		}
		state.Normalized = append(state.Normalized, NormalizedTransaction{Transaction: tx, CleanMerchant: clean})
		if !seen[clean] {
			seen[clean] = true
			state.Labels = append(state.Labels, clean)
		}
	}
	log := logger.FromContext(ctx)
	log.Debug().Int("transactions", len(state.Normalized)).Int("labels", len(state.Labels)).Msg("normalized merchants")
	return nil
}

// Step 2: ClusterStep unifies labels that denote the same merchant. A
// failing clusterer degrades to identity grouping.
type ClusterStep struct {
	Clusterer Clusterer
	Metrics   Recorder
}

func (s *ClusterStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	mapping, err := s.Clusterer.Cluster(ctx, state.Labels)
	if err == nil {
		err = validateMapping(state.Labels, mapping)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ClusterStep: %w", ctxErr)
		}
		log.Warn().Err(err).Msg("merchant clustering failed, falling back to identity grouping")
		s.Metrics.ClusteringFallback()
		mapping = identityMapping(state.Labels)
	}
	state.Mapping = mapping
	return nil
}

func validateMapping(labels []string, mapping map[string]string) error {
	members := make(map[string]bool, len(labels))
	for _, l := range labels {
		members[l] = true
	}
	for _, l := range labels {
		unified, ok := mapping[l]
		if !ok {
			return fmt.Errorf("label %q missing from cluster mapping", l)
		}
		if !members[unified] {
			return fmt.Errorf("label %q mapped to unknown name %q", l, unified)
		}
		if mapping[unified] != unified {
			return fmt.Errorf("label %q mapped to %q, which is not its own representative", l, unified)
		}
	}
	return nil
}

// Step 3: GroupStep collects transactions per unified merchant and drops
// merchants below the minimum group size.
type GroupStep struct {
	MinGroupSize int
}

func (s *GroupStep) Execute(ctx context.Context, state *PipelineState) error {
	byName := make(map[string]*MerchantGroup)
	var order []*MerchantGroup
	memberSeen := make(map[string]map[string]bool)

	for _, tx := range state.Normalized {
		name := state.Mapping[tx.CleanMerchant]
		g, ok := byName[name]
		if !ok {
			g = &MerchantGroup{MerchantCluster: MerchantCluster{UnifiedName: name}}
			byName[name] = g
			order = append(order, g)
			memberSeen[name] = make(map[string]bool)
		}
		g.Transactions = append(g.Transactions, tx)
		if !memberSeen[name][tx.CleanMerchant] {
			memberSeen[name][tx.CleanMerchant] = true
			g.MemberLabels = append(g.MemberLabels, tx.CleanMerchant)
		}
	}

	log := logger.FromContext(ctx)
	state.Groups = state.Groups[:0]
	for _, g := range order {
		if len(g.Transactions) < s.MinGroupSize {
			log.Debug().Str("merchant", g.UnifiedName).Int("transactions", len(g.Transactions)).Msg("merchant below minimum group size")
			continue
		}
		sort.SliceStable(g.Transactions, func(i, j int) bool {
			return g.Transactions[i].Date.Before(g.Transactions[j].Date)
		})
		sort.Strings(g.MemberLabels)
		state.Groups = append(state.Groups, g)
	}
	return nil
}

// Step 4: EligibilityStep removes merchants the keyword tables rule out.
type EligibilityStep struct {
	Keywords KeywordTables
}

func (s *EligibilityStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	kept := state.Groups[:0]
	for _, g := range state.Groups {
		if !s.Keywords.IsLikelySubscription(g.UnifiedName) {
			log.Debug().Str("merchant", g.UnifiedName).Msg("merchant ruled out by keywords")
			continue
		}
		kept = append(kept, g)
	}
	state.Groups = kept
	return nil
}

// Step 5: FeatureStep computes a feature vector per eligible merchant.
type FeatureStep struct{}

func (s *FeatureStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	state.Candidates = state.Candidates[:0]
	for _, g := range state.Groups {
		fv, err := ExtractFeatures(*g, state.Now)
		if errors.Is(err, ErrInsufficientHistory) {
			log.Debug().Str("merchant", g.UnifiedName).Msg("not enough intervals for features")
			continue
		}
		if err != nil {
			return fmt.Errorf("FeatureStep: %w", err)
		}
		state.Candidates = append(state.Candidates, &candidate{group: g, features: fv})
	}
	return nil
}

// Step 6: ClassifyStep runs the isolation forest over all candidates.
type ClassifyStep struct {
	Classifier *RecurrenceClassifier
	Metrics    Recorder
}

func (s *ClassifyStep) Execute(ctx context.Context, state *PipelineState) error {
	rows := make([][]float64, len(state.Candidates))
	for i, c := range state.Candidates {
		rows[i] = c.features.Array()
	}

	verdicts, err := s.Classifier.ClassifyAll(rows)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("mode", string(s.Classifier.Mode())).Msg("classifier failed, using fail-closed verdicts")
		s.Metrics.ClassifierFailure()
	}
	for i, c := range state.Candidates {
		c.classification = verdicts[i]
	}
	return nil
}

// Step 7: ScoreStep turns each classified candidate into a DetectionResult.
type ScoreStep struct {
	Config   Config
	Keywords KeywordTables
}

func (s *ScoreStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	risk := RiskPolicyFrom(s.Config)
	state.Results = []DetectionResult{}

	for _, c := range state.Candidates {
		fv := c.features
		name := c.group.UnifiedName

		if fv.AvgIntervalDays < s.Config.MinIntervalDays || fv.AvgIntervalDays > s.Config.MaxIntervalDays {
			log.Debug().Str("merchant", name).Float64("interval_days", fv.AvgIntervalDays).Msg("mean interval outside accepted window")
			continue
		}

		confidence := Confidence(c.classification.Score, fv)
		if confidence < s.Config.MinConfidence {
			log.Debug().Str("merchant", name).Float64("confidence", confidence).Msg("confidence below threshold")
			continue
		}

		status, label := ActivityStatus(fv, s.Config.GraceDays, LabelFor(confidence))
		frequency := FrequencyLabel(fv.AvgIntervalDays)
		category := s.Keywords.Category(name)
		tier, reasons := risk.AssessRisk(fv.LastAmount, fv.AvgAmount, category)

		state.Results = append(state.Results, DetectionResult{
			UnifiedName:       name,
			MemberLabels:      c.group.MemberLabels,
			LastAmount:        fv.LastAmount,
			AvgAmount:         fv.AvgAmount,
			LastDate:          fv.LastDate,
			PredictedNextDate: PredictNextDate(fv),
			Frequency:         frequency,
			IntervalDays:      fv.AvgIntervalDays,
			Category:          category,
			Risk:              tier,
			RiskReasons:       reasons,
			ConfidenceScore:   confidence,
			ConfidenceLabel:   label,
			Status:            status,
			PatternType:       PatternTypeFor(label, frequency),
			TransactionCount:  fv.TransactionCount,
			MLPrediction:      c.classification.Prediction,
			MLScore:           c.classification.Score,
		})
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in sequence, stopping at the first error.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d cancelled: %w", i+1, err)
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
