package stats

import (
	"fmt"

	mstats "github.com/montanaflynn/stats"

	"permscreen/domain/core"
)

// TestResult holds the permutation-test outcome for one outcome column.
// INVARIANTS:
// - PValue and PValueGreater always in [1/NumPermutations, 1.0]
// - GroupASize and GroupBSize count non-missing observations only
type TestResult struct {
	Variable        core.VariableKey        `json:"variable"`
	Observed        float64                 `json:"observed"` // mean(A) - mean(B)
	PValue          float64                 `json:"p_value"`  // two-sided, tie-inclusive
	PValueGreater   float64                 `json:"p_value_greater"`
	GroupASize      int                     `json:"group_a_size"`
	GroupBSize      int                     `json:"group_b_size"`
	NumPermutations int                     `json:"num_permutations"`
	Null            NullDistributionSummary `json:"null_summary"`
}

// NullDistributionSummary describes the simulated null distribution of the
// group-difference statistic. The raw draws are ephemeral and never stored.
type NullDistributionSummary struct {
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Percentile95 float64 `json:"percentile_95"`
	Percentile99 float64 `json:"percentile_99"`
}

// SummarizeNull computes the summary of a null distribution sample
func SummarizeNull(draws []float64) NullDistributionSummary {
	if len(draws) == 0 {
		return NullDistributionSummary{}
	}
	mean, _ := mstats.Mean(draws)
	stdDev, _ := mstats.StandardDeviationSample(draws)
	min, _ := mstats.Min(draws)
	max, _ := mstats.Max(draws)
	p95, _ := mstats.Percentile(draws, 95)
	p99, _ := mstats.Percentile(draws, 99)
	return NullDistributionSummary{
		Mean:         mean,
		StdDev:       stdDev,
		Min:          min,
		Max:          max,
		Percentile95: p95,
		Percentile99: p99,
	}
}

// ShortlistEntry is one outcome column whose p-value cleared the
// significance threshold of a screen.
type ShortlistEntry struct {
	Variable core.VariableKey `json:"variable"`
	Observed float64          `json:"observed"`
	PValue   float64          `json:"p_value"`
	WelchP   float64          `json:"welch_p,omitempty"` // parametric cross-check
}

// ScreenManifest captures the complete specification and outcome of one
// screening run for replayability.
type ScreenManifest struct {
	ScreenID        core.ScreenID  `json:"screen_id"`
	CohortID        core.CohortID  `json:"cohort_id"`
	Seed            int64          `json:"seed"`
	NumPermutations int            `json:"num_permutations"`
	Alpha           float64        `json:"alpha"`
	ColumnsTested   int            `json:"columns_tested"`
	ShortlistCount  int            `json:"shortlist_count"`
	RuntimeMs       int64          `json:"runtime_ms"`
	CreatedAt       core.Timestamp `json:"created_at"`
}

// NewScreenManifest creates a manifest with its determinism metadata set
func NewScreenManifest(cohortID core.CohortID, seed int64, numPermutations int, alpha float64) *ScreenManifest {
	return &ScreenManifest{
		ScreenID:        core.ScreenID(core.NewID()),
		CohortID:        cohortID,
		Seed:            seed,
		NumPermutations: numPermutations,
		Alpha:           alpha,
		CreatedAt:       core.Now(),
	}
}

// Validate checks manifest invariants
func (m *ScreenManifest) Validate() error {
	if m.NumPermutations < 1 {
		return fmt.Errorf("NumPermutations must be >= 1, got %d", m.NumPermutations)
	}
	if m.Alpha <= 0 || m.Alpha > 1 {
		return fmt.Errorf("Alpha must be in (0, 1], got %f", m.Alpha)
	}
	if m.ScreenID == "" {
		return fmt.Errorf("ScreenID must be set")
	}
	return nil
}

// ScreenResult is the full outcome of a screening run: the manifest plus one
// TestResult per outcome column and the significant shortlist.
type ScreenResult struct {
	Manifest  ScreenManifest                  `json:"manifest"`
	Results   map[core.VariableKey]TestResult `json:"results"`
	Shortlist []ShortlistEntry                `json:"shortlist"`
}
