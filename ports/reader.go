package ports

import (
	"context"

	"permscreen/domain/cohort"
)

// CohortSpec names the columns that define a screening cohort within a table
type CohortSpec struct {
	LabelColumn   string // column carrying the group category
	CategoryA     string // raw value mapped to group A
	CategoryB     string // raw value mapped to group B
	OutcomePrefix string // outcome columns are those whose name carries this prefix
}

// CohortReaderPort loads a labeled cohort bundle from a tabular data source
type CohortReaderPort interface {
	ReadCohort(ctx context.Context, path string, spec CohortSpec) (*cohort.Bundle, error)
}
