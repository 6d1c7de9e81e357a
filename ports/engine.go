package ports

import (
	"context"
	"math/rand"

	"permscreen/domain/cohort"
	"permscreen/domain/core"
	"permscreen/domain/stats"
)

// PermutationPort runs label-permutation tests over one or more outcome columns
type PermutationPort interface {
	// Run computes, for every outcome column, the observed group-difference
	// statistic and its empirical p-values against a null distribution built
	// by repeated random relabeling. Either a complete result mapping is
	// returned or an error; never partial results.
	Run(ctx context.Context, labels []cohort.Label, outcomes map[core.VariableKey][]float64, numPermutations int, rng *rand.Rand) (map[core.VariableKey]stats.TestResult, error)
}
