package cohort

import (
	"fmt"

	"permscreen/domain/core"
)

// Label is the binary group assignment of one observation.
// Observations whose raw label matches neither configured category are
// LabelMissing and must be filtered out before analysis.
type Label int8

const (
	LabelMissing Label = iota
	GroupA
	GroupB
)

// String returns the canonical group name
func (l Label) String() string {
	switch l {
	case GroupA:
		return "A"
	case GroupB:
		return "B"
	default:
		return "missing"
	}
}

// ParseLabel maps a raw category value onto a binary label.
// Values matching neither category are LabelMissing.
func ParseLabel(raw, categoryA, categoryB string) Label {
	switch raw {
	case categoryA:
		return GroupA
	case categoryB:
		return GroupB
	default:
		return LabelMissing
	}
}

// Bundle is the canonical data object for permutation screening: an ordered
// sequence of observations, each carrying a binary group label and one value
// per outcome column. Missing outcome values are NaN and are excluded
// pairwise per column, never globally.
type Bundle struct {
	CohortID core.CohortID

	Labels []Label

	// Columns preserves insertion order; Outcomes holds the values keyed
	// by variable. Both are maintained by AddColumn.
	Columns  []core.VariableKey
	Outcomes map[core.VariableKey][]float64

	CreatedAt core.Timestamp
}

// NewBundle creates a bundle over a fixed label vector
func NewBundle(cohortID core.CohortID, labels []Label) *Bundle {
	return &Bundle{
		CohortID:  cohortID,
		Labels:    labels,
		Outcomes:  make(map[core.VariableKey][]float64),
		CreatedAt: core.Now(),
	}
}

// AddColumn registers an outcome column. The column must match the label
// vector in length and must not already exist.
func (b *Bundle) AddColumn(key core.VariableKey, values []float64) error {
	if len(values) != len(b.Labels) {
		return core.NewInvalidInputError(fmt.Sprintf("column %s has %d values for %d observations", key, len(values), len(b.Labels)))
	}
	if _, exists := b.Outcomes[key]; exists {
		return core.NewInvalidInputError(fmt.Sprintf("duplicate column %s", key))
	}
	b.Columns = append(b.Columns, key)
	b.Outcomes[key] = values
	return nil
}

// Column returns the values for a variable
func (b *Bundle) Column(key core.VariableKey) ([]float64, bool) {
	values, ok := b.Outcomes[key]
	return values, ok
}

// RowCount returns the number of observations
func (b *Bundle) RowCount() int {
	return len(b.Labels)
}

// ColumnCount returns the number of outcome columns
func (b *Bundle) ColumnCount() int {
	return len(b.Columns)
}

// GroupCounts returns the number of observations labeled A and B
func (b *Bundle) GroupCounts() (nA, nB int) {
	for _, l := range b.Labels {
		switch l {
		case GroupA:
			nA++
		case GroupB:
			nB++
		}
	}
	return nA, nB
}

// Validate checks the invariants the screening engine assumes: at least one
// outcome column, every column as long as the label vector, no unlabeled
// observations, and both groups represented.
func (b *Bundle) Validate() error {
	if len(b.Columns) == 0 {
		return core.ErrNoOutcomes
	}
	for _, key := range b.Columns {
		if len(b.Outcomes[key]) != len(b.Labels) {
			return core.ErrLengthMismatch
		}
	}
	nA, nB := 0, 0
	for i, l := range b.Labels {
		switch l {
		case GroupA:
			nA++
		case GroupB:
			nB++
		default:
			return core.NewInvalidInputError(fmt.Sprintf("observation %d is unlabeled; call FilterLabeled first", i))
		}
	}
	if nA == 0 || nB == 0 {
		return core.ErrNonBinaryLabels
	}
	return nil
}

// FilterLabeled returns a bundle containing only observations with a binary
// label, keeping positional correspondence across every outcome column.
func (b *Bundle) FilterLabeled() *Bundle {
	keep := make([]int, 0, len(b.Labels))
	for i, l := range b.Labels {
		if l == GroupA || l == GroupB {
			keep = append(keep, i)
		}
	}

	labels := make([]Label, len(keep))
	for j, i := range keep {
		labels[j] = b.Labels[i]
	}

	filtered := NewBundle(b.CohortID, labels)
	for _, key := range b.Columns {
		src := b.Outcomes[key]
		values := make([]float64, len(keep))
		for j, i := range keep {
			values[j] = src[i]
		}
		// lengths are equal by construction
		_ = filtered.AddColumn(key, values)
	}
	return filtered
}

// SwapGroups returns a bundle with the A/B assignment reversed. Outcome
// values are shared, not copied; the statistic is negated, p-values are not.
func (b *Bundle) SwapGroups() *Bundle {
	labels := make([]Label, len(b.Labels))
	for i, l := range b.Labels {
		switch l {
		case GroupA:
			labels[i] = GroupB
		case GroupB:
			labels[i] = GroupA
		default:
			labels[i] = l
		}
	}
	swapped := NewBundle(b.CohortID, labels)
	swapped.Columns = b.Columns
	swapped.Outcomes = b.Outcomes
	return swapped
}
