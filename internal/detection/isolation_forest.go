package detection

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ErrClassifierInput is returned for empty, ragged or non-finite input.
var ErrClassifierInput = errors.New("invalid classifier input")

const eulerGamma = 0.5772156649015329

// ForestConfig holds isolation forest hyperparameters.
type ForestConfig struct {
	Trees         int
	MaxSamples    int
	Contamination float64
	Seed          int64
}

// IsolationForest is an ensemble of random isolation trees. Scores are
// negative; values closer to zero are more normal.
type IsolationForest struct {
	trees      []*isoNode
	sampleSize int
	offset     float64
}

type isoNode struct {
	feature   int
	threshold float64
	left      *isoNode
	right     *isoNode
	size      int
}

func (n *isoNode) leaf() bool { return n.left == nil }

// FitIsolationForest grows cfg.Trees trees on rows. The random stream is
// seeded from cfg.Seed so equal input yields equal scores.
func FitIsolationForest(rows [][]float64, cfg ForestConfig) (*IsolationForest, error) {
	if err := validateRows(rows); err != nil {
		return nil, fmt.Errorf("FitIsolationForest: %w", err)
	}
	if cfg.Trees <= 0 {
		return nil, fmt.Errorf("FitIsolationForest: trees must be positive, got %d: %w", cfg.Trees, ErrClassifierInput)
	}
	if cfg.Contamination <= 0 || cfg.Contamination > 0.5 {
		return nil, fmt.Errorf("FitIsolationForest: contamination %v out of (0, 0.5]: %w", cfg.Contamination, ErrClassifierInput)
	}

	n := len(rows)
	psi := n
	if cfg.MaxSamples > 0 && cfg.MaxSamples < n {
		psi = cfg.MaxSamples
	}
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))

	rng := rand.New(rand.NewSource(cfg.Seed))
	forest := &IsolationForest{sampleSize: psi}
	for t := 0; t < cfg.Trees; t++ {
		idx := rng.Perm(n)[:psi]
		forest.trees = append(forest.trees, growTree(rows, idx, 0, maxDepth, rng))
	}

	scores := forest.ScoreSamples(rows)
	forest.offset = percentile(scores, 100*cfg.Contamination)
	return forest, nil
}

func growTree(rows [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if depth >= maxDepth || len(idx) <= 1 {
		return &isoNode{size: len(idx)}
	}

	width := len(rows[idx[0]])
	var candidates []int
	lo := make([]float64, width)
	hi := make([]float64, width)
	for f := 0; f < width; f++ {
		lo[f], hi[f] = math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			v := rows[i][f]
			lo[f] = math.Min(lo[f], v)
			hi[f] = math.Max(hi[f], v)
		}
		if hi[f] > lo[f] {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return &isoNode{size: len(idx)}
	}

	f := candidates[rng.Intn(len(candidates))]
	threshold := lo[f] + rng.Float64()*(hi[f]-lo[f])

	var left, right []int
	for _, i := range idx {
		if rows[i][f] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &isoNode{
		feature:   f,
		threshold: threshold,
		size:      len(idx),
		left:      growTree(rows, left, depth+1, maxDepth, rng),
		right:     growTree(rows, right, depth+1, maxDepth, rng),
	}
}

// ScoreSamples returns -2^(-E[h(x)]/c(psi)) for every row.
func (f *IsolationForest) ScoreSamples(rows [][]float64) []float64 {
	norm := averagePathLength(f.sampleSize)
	scores := make([]float64, len(rows))
	for i, row := range rows {
		var total float64
		for _, tree := range f.trees {
			total += pathLength(tree, row, 0)
		}
		mean := total / float64(len(f.trees))
		ratio := 1.0
		if norm > 0 {
			ratio = mean / norm
		}
		scores[i] = -math.Pow(2, -ratio)
	}
	return scores
}

// Predict returns 1 for rows scoring at or above the contamination offset
// and -1 for outliers.
func (f *IsolationForest) Predict(score float64) int {
	if score < f.offset {
		return -1
	}
	return 1
}

func pathLength(n *isoNode, row []float64, depth int) float64 {
	for !n.leaf() {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// averagePathLength is the expected unsuccessful-search depth in a binary
// search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

// percentile uses linear interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}

func validateRows(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("no rows: %w", ErrClassifierInput)
	}
	width := len(rows[0])
	if width == 0 {
		return fmt.Errorf("zero-width rows: %w", ErrClassifierInput)
	}
	for i, row := range rows {
		if len(row) != width {
			return fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), width, ErrClassifierInput)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("row %d column %d is not finite: %w", i, j, ErrClassifierInput)
			}
		}
	}
	return nil
}
