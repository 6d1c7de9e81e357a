package permutation

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"permscreen/domain/cohort"
	"permscreen/domain/core"
	"permscreen/domain/stats"
)

// minGroupSize is the smallest number of non-missing observations a group
// may have for its mean to be considered defined. Groups below this raise
// a degenerate-group error instead of silently propagating NaN.
const minGroupSize = 2

// Engine computes empirical p-values for the null hypothesis "the outcome
// distribution does not depend on group label" by label permutation. It is
// stateless between calls; randomness comes only from the caller's rng.
type Engine struct {
	maxWorkers int
}

// NewEngine creates an engine with default concurrency settings
func NewEngine() *Engine {
	return &Engine{maxWorkers: 4}
}

// SetMaxWorkers configures how many outcome columns are processed in parallel
func (e *Engine) SetMaxWorkers(n int) {
	if n < 1 {
		n = 1
	}
	e.maxWorkers = n
}

// Run performs the permutation test over every outcome column.
//
// One uniform-random permutation of the label vector is drawn per simulation
// round (Fisher-Yates, sequentially from rng for determinism) and shared by
// all columns within that round, preserving any cross-column correlation
// structure under the null. Either the full result mapping is returned or an
// error; never partial results.
func (e *Engine) Run(ctx context.Context, labels []cohort.Label, outcomes map[core.VariableKey][]float64, numPermutations int, rng *rand.Rand) (map[core.VariableKey]stats.TestResult, error) {
	if err := validateInputs(labels, outcomes, numPermutations); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, core.NewInvalidInputError("rng must be provided")
	}

	// All permutations are drawn up front, before any column statistic is
	// computed, so column workers never touch the rng.
	perms := drawPermutations(labels, numPermutations, rng)

	return e.runWithPermutations(ctx, labels, outcomes, perms)
}

// runWithPermutations computes observed statistics and null distributions
// against an explicit set of label permutations. Split out from Run so the
// permutation set can be fixed in tests.
func (e *Engine) runWithPermutations(ctx context.Context, labels []cohort.Label, outcomes map[core.VariableKey][]float64, perms [][]cohort.Label) (map[core.VariableKey]stats.TestResult, error) {
	results := make(map[core.VariableKey]stats.TestResult, len(outcomes))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)

	for key, values := range outcomes {
		g.Go(func() error {
			result, err := testColumn(gctx, key, labels, values, perms)
			if err != nil {
				return err
			}
			mu.Lock()
			results[key] = result
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// testColumn runs the full test for a single outcome column
func testColumn(ctx context.Context, key core.VariableKey, labels []cohort.Label, values []float64, perms [][]cohort.Label) (stats.TestResult, error) {
	observed, nA, nB := groupDiff(labels, values)
	if nA < minGroupSize {
		return stats.TestResult{}, core.NewDegenerateGroupError(key, cohort.GroupA.String(), nA)
	}
	if nB < minGroupSize {
		return stats.TestResult{}, core.NewDegenerateGroupError(key, cohort.GroupB.String(), nB)
	}

	numPermutations := len(perms)
	draws := make([]float64, numPermutations)
	absObserved := math.Abs(observed)
	exceedTwoSided := 0
	exceedGreater := 0

	for r, perm := range perms {
		select {
		case <-ctx.Done():
			return stats.TestResult{}, ctx.Err()
		default:
		}

		diff, pA, pB := groupDiff(perm, values)
		if pA < minGroupSize || pB < minGroupSize {
			// Missingness is fixed to observation identity, so a permutation
			// can starve a group of usable values when missing values
			// outnumber a group's slots.
			usable := pA
			group := cohort.GroupA.String()
			if pB < pA {
				usable = pB
				group = cohort.GroupB.String()
			}
			return stats.TestResult{}, core.NewDegenerateGroupError(key, group, usable)
		}

		draws[r] = diff
		// Ties count as supporting the null (inclusive >=), biasing the
		// p-value conservatively upward.
		if math.Abs(diff) >= absObserved {
			exceedTwoSided++
		}
		if diff >= observed {
			exceedGreater++
		}
	}

	return stats.TestResult{
		Variable:        key,
		Observed:        observed,
		PValue:          empiricalPValue(exceedTwoSided, numPermutations),
		PValueGreater:   empiricalPValue(exceedGreater, numPermutations),
		GroupASize:      nA,
		GroupBSize:      nB,
		NumPermutations: numPermutations,
		Null:            stats.SummarizeNull(draws),
	}, nil
}

// groupDiff computes mean(values | label = A) - mean(values | label = B),
// excluding NaN values per group, and returns the usable count per group.
func groupDiff(labels []cohort.Label, values []float64) (diff float64, nA, nB int) {
	var sumA, sumB float64
	for i, l := range labels {
		v := values[i]
		if math.IsNaN(v) {
			continue
		}
		switch l {
		case cohort.GroupA:
			sumA += v
			nA++
		case cohort.GroupB:
			sumB += v
			nB++
		}
	}
	if nA == 0 || nB == 0 {
		return 0, nA, nB
	}
	return sumA/float64(nA) - sumB/float64(nB), nA, nB
}

// empiricalPValue converts an exceedance count into a p-value clamped to
// [1/m, 1] so it is never exactly zero.
func empiricalPValue(exceed, m int) float64 {
	p := float64(exceed) / float64(m)
	if floor := 1.0 / float64(m); p < floor {
		p = floor
	}
	if p > 1.0 {
		p = 1.0
	}
	return p
}

// drawPermutations produces numPermutations uniform-random shuffles of the
// label vector. One Fisher-Yates pass per round, independently per round,
// never per column.
func drawPermutations(labels []cohort.Label, numPermutations int, rng *rand.Rand) [][]cohort.Label {
	perms := make([][]cohort.Label, numPermutations)
	for i := range perms {
		p := make([]cohort.Label, len(labels))
		copy(p, labels)
		for j := len(p) - 1; j > 0; j-- {
			k := rng.Intn(j + 1)
			p[j], p[k] = p[k], p[j]
		}
		perms[i] = p
	}
	return perms
}

// validateInputs enforces the engine's call contract
func validateInputs(labels []cohort.Label, outcomes map[core.VariableKey][]float64, numPermutations int) error {
	if numPermutations < 1 {
		return core.ErrBadPermutations
	}
	if len(outcomes) == 0 {
		return core.ErrNoOutcomes
	}
	for _, l := range labels {
		if l != cohort.GroupA && l != cohort.GroupB {
			return core.ErrNonBinaryLabels
		}
	}
	for key, values := range outcomes {
		if len(values) != len(labels) {
			return core.NewInvalidInputError("column " + key.String() + " does not match label length")
		}
	}
	return nil
}
