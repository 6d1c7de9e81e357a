package permutation

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permscreen/domain/cohort"
	"permscreen/domain/core"
)

func sixObservations() ([]cohort.Label, map[core.VariableKey][]float64) {
	labels := []cohort.Label{cohort.GroupA, cohort.GroupA, cohort.GroupA, cohort.GroupB, cohort.GroupB, cohort.GroupB}
	outcomes := map[core.VariableKey][]float64{
		"NP_000001": {10, 12, 11, 1, 2, 0},
	}
	return labels, outcomes
}

func TestRunObservedStatistic(t *testing.T) {
	labels, outcomes := sixObservations()
	engine := NewEngine()

	results, err := engine.Run(context.Background(), labels, outcomes, 100, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results["NP_000001"]
	// mean(10,12,11) - mean(1,2,0) = 11 - 1 = 10
	assert.InDelta(t, 10.0, result.Observed, 1e-12)
	assert.Equal(t, 3, result.GroupASize)
	assert.Equal(t, 3, result.GroupBSize)
	assert.Equal(t, 100, result.NumPermutations)
}

func TestRunDeterminism(t *testing.T) {
	labels, outcomes := sixObservations()
	outcomes["NP_000002"] = []float64{5, 4, 6, 5, 4, 6}
	engine := NewEngine()

	first, err := engine.Run(context.Background(), labels, outcomes, 500, rand.New(rand.NewSource(205)))
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), labels, outcomes, 500, rand.New(rand.NewSource(205)))
	require.NoError(t, err)

	// Bit-identical results for identical seed and inputs, regardless of
	// worker scheduling
	assert.Equal(t, first, second)

	third, err := engine.Run(context.Background(), labels, outcomes, 500, rand.New(rand.NewSource(206)))
	require.NoError(t, err)
	assert.NotEqual(t, first["NP_000001"].Null, third["NP_000001"].Null)
}

func TestRunPValueBounds(t *testing.T) {
	labels, outcomes := sixObservations()
	outcomes["noise"] = []float64{1, -1, 2, -2, 3, -3}
	engine := NewEngine()

	for _, m := range []int{1, 10, 250} {
		results, err := engine.Run(context.Background(), labels, outcomes, m, rand.New(rand.NewSource(7)))
		require.NoError(t, err)
		for key, result := range results {
			floor := 1.0 / float64(m)
			assert.GreaterOrEqual(t, result.PValue, floor, "column %s, m=%d", key, m)
			assert.LessOrEqual(t, result.PValue, 1.0, "column %s, m=%d", key, m)
			assert.GreaterOrEqual(t, result.PValueGreater, floor, "column %s, m=%d", key, m)
			assert.LessOrEqual(t, result.PValueGreater, 1.0, "column %s, m=%d", key, m)
		}
	}
}

// TestRunInjectedIdentityPermutation pins the end-to-end example: a single
// permutation equal to the identity labeling reproduces the observed
// statistic exactly, and the inclusive >= makes the p-value 1/1 = 1.
func TestRunInjectedIdentityPermutation(t *testing.T) {
	labels, outcomes := sixObservations()
	engine := NewEngine()

	identity := make([]cohort.Label, len(labels))
	copy(identity, labels)

	results, err := engine.runWithPermutations(context.Background(), labels, outcomes, [][]cohort.Label{identity})
	require.NoError(t, err)

	result := results["NP_000001"]
	assert.InDelta(t, 10.0, result.Observed, 1e-12)
	assert.Equal(t, 1.0, result.PValue)
	assert.Equal(t, 1.0, result.PValueGreater)
}

// TestRunInjectedReversedPermutation flips every label: the permuted
// statistic is -10, whose absolute value still ties the observed 10, so the
// two-sided p-value stays 1 while the one-sided query no longer counts it.
func TestRunInjectedReversedPermutation(t *testing.T) {
	labels, outcomes := sixObservations()
	engine := NewEngine()

	reversed := []cohort.Label{cohort.GroupB, cohort.GroupB, cohort.GroupB, cohort.GroupA, cohort.GroupA, cohort.GroupA}

	results, err := engine.runWithPermutations(context.Background(), labels, outcomes, [][]cohort.Label{reversed})
	require.NoError(t, err)

	result := results["NP_000001"]
	assert.Equal(t, 1.0, result.PValue, "tie on absolute value counts as supporting the null")
	// -10 < 10, so the only draw does not exceed the observed value; the
	// p-value clamps to the 1/m floor instead of 0
	assert.Equal(t, 1.0, result.PValueGreater)
}

func TestRunLabelSwapSymmetry(t *testing.T) {
	labels, outcomes := sixObservations()
	swapped := make([]cohort.Label, len(labels))
	for i, l := range labels {
		if l == cohort.GroupA {
			swapped[i] = cohort.GroupB
		} else {
			swapped[i] = cohort.GroupA
		}
	}
	engine := NewEngine()

	original, err := engine.Run(context.Background(), labels, outcomes, 300, rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	mirrored, err := engine.Run(context.Background(), swapped, outcomes, 300, rand.New(rand.NewSource(99)))
	require.NoError(t, err)

	a := original["NP_000001"]
	b := mirrored["NP_000001"]
	assert.InDelta(t, -a.Observed, b.Observed, 1e-12)
	assert.InDelta(t, -a.Null.Mean, b.Null.Mean, 1e-12)
	assert.InDelta(t, -a.Null.Max, b.Null.Min, 1e-12)
	assert.Equal(t, a.PValue, b.PValue, "two-sided p-value is invariant under label swap")
}

// TestRunMissingValueIsolation verifies that a NaN in one column changes only
// that column's effective group size and statistic for the same permutation
// draws.
func TestRunMissingValueIsolation(t *testing.T) {
	labels, _ := sixObservations()
	clean := map[core.VariableKey][]float64{
		"with_nan": {10, 12, 11, 1, 2, 0},
		"intact":   {3, 4, 5, 6, 7, 8},
	}
	dirty := map[core.VariableKey][]float64{
		"with_nan": {10, math.NaN(), 11, 1, 2, 0},
		"intact":   {3, 4, 5, 6, 7, 8},
	}
	engine := NewEngine()

	cleanResults, err := engine.Run(context.Background(), labels, clean, 200, rand.New(rand.NewSource(11)))
	require.NoError(t, err)
	dirtyResults, err := engine.Run(context.Background(), labels, dirty, 200, rand.New(rand.NewSource(11)))
	require.NoError(t, err)

	assert.Equal(t, cleanResults["intact"], dirtyResults["intact"], "untouched column must be unaffected")

	assert.Equal(t, 2, dirtyResults["with_nan"].GroupASize)
	assert.Equal(t, 3, dirtyResults["with_nan"].GroupBSize)
	// mean(10,11) - mean(1,2,0) = 10.5 - 1 = 9.5
	assert.InDelta(t, 9.5, dirtyResults["with_nan"].Observed, 1e-12)
}

func TestRunDegenerateGroup(t *testing.T) {
	labels, _ := sixObservations()
	outcomes := map[core.VariableKey][]float64{
		"all_missing_in_b": {10, 12, 11, math.NaN(), math.NaN(), math.NaN()},
		"healthy":          {1, 2, 3, 4, 5, 6},
	}
	engine := NewEngine()

	results, err := engine.Run(context.Background(), labels, outcomes, 50, rand.New(rand.NewSource(42)))
	require.Error(t, err)
	assert.True(t, core.IsDegenerateGroup(err))
	assert.Contains(t, err.Error(), "all_missing_in_b", "error must name the offending column")
	assert.Nil(t, results, "no partial result mapping on failure")
}

func TestRunSingleUsableObservationIsDegenerate(t *testing.T) {
	labels, _ := sixObservations()
	outcomes := map[core.VariableKey][]float64{
		"one_left": {10, 12, 11, 4, math.NaN(), math.NaN()},
	}
	engine := NewEngine()

	_, err := engine.Run(context.Background(), labels, outcomes, 50, rand.New(rand.NewSource(42)))
	require.Error(t, err)
	assert.True(t, core.IsDegenerateGroup(err))
}

func TestRunInputValidation(t *testing.T) {
	labels, outcomes := sixObservations()
	engine := NewEngine()
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	_, err := engine.Run(ctx, labels, outcomes, 0, rng)
	assert.ErrorIs(t, err, core.ErrBadPermutations)

	_, err = engine.Run(ctx, labels, map[core.VariableKey][]float64{}, 10, rng)
	assert.ErrorIs(t, err, core.ErrNoOutcomes)

	unlabeled := []cohort.Label{cohort.GroupA, cohort.LabelMissing, cohort.GroupA, cohort.GroupB, cohort.GroupB, cohort.GroupB}
	_, err = engine.Run(ctx, unlabeled, outcomes, 10, rng)
	assert.ErrorIs(t, err, core.ErrNonBinaryLabels)

	short := map[core.VariableKey][]float64{"x": {1, 2, 3}}
	_, err = engine.Run(ctx, labels, short, 10, rng)
	assert.True(t, core.IsInvalidInput(err))

	_, err = engine.Run(ctx, labels, outcomes, 10, nil)
	assert.True(t, core.IsInvalidInput(err))
}

// TestRunWorkerCountEquivalence checks that concurrency is an optimization,
// not a semantic: one worker and many workers agree bit for bit.
func TestRunWorkerCountEquivalence(t *testing.T) {
	labels, outcomes := sixObservations()
	for i := 0; i < 8; i++ {
		key := core.VariableKey("col_" + strconv.Itoa(i))
		values := make([]float64, len(labels))
		for j := range values {
			values[j] = float64((i*7+j*3)%11) - 5
		}
		outcomes[key] = values
	}

	serial := NewEngine()
	serial.SetMaxWorkers(1)
	parallel := NewEngine()
	parallel.SetMaxWorkers(8)

	a, err := serial.Run(context.Background(), labels, outcomes, 400, rand.New(rand.NewSource(294)))
	require.NoError(t, err)
	b, err := parallel.Run(context.Background(), labels, outcomes, 400, rand.New(rand.NewSource(294)))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestRunContextCancellation(t *testing.T) {
	labels, outcomes := sixObservations()
	engine := NewEngine()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, labels, outcomes, 100000, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStrongEffectHasSmallPValue(t *testing.T) {
	n := 40
	labels := make([]cohort.Label, n)
	values := make([]float64, n)
	rng := rand.New(rand.NewSource(8))
	for i := 0; i < n; i++ {
		if i < n/2 {
			labels[i] = cohort.GroupA
			values[i] = 10 + rng.NormFloat64()
		} else {
			labels[i] = cohort.GroupB
			values[i] = rng.NormFloat64()
		}
	}
	engine := NewEngine()

	results, err := engine.Run(context.Background(), labels, map[core.VariableKey][]float64{"x": values}, 2000, rand.New(rand.NewSource(9)))
	require.NoError(t, err)

	// A ten-sigma group separation should land at the p-value floor
	assert.InDelta(t, 1.0/2000.0, results["x"].PValue, 1e-12)
}
