package app

import (
	"context"
	"sort"
	"time"

	"permscreen/adapters/stats/welch"
	"permscreen/domain/cohort"
	"permscreen/domain/core"
	"permscreen/domain/stats"
	"permscreen/internal"
	"permscreen/internal/errors"
	"permscreen/ports"
)

// ScreenRequest specifies one screening run over a tabular data file
type ScreenRequest struct {
	Path            string
	Spec            ports.CohortSpec
	NumPermutations int
	Alpha           float64
	Seed            int64
}

// ScreenService orchestrates cohort loading, permutation screening,
// shortlist selection and optional persistence.
type ScreenService struct {
	engine ports.PermutationPort
	reader ports.CohortReaderPort
	rng    ports.RNGPort
	store  ports.ScreenStorePort // nil disables persistence
	logger *internal.Logger
}

// NewScreenService wires a screening service
func NewScreenService(engine ports.PermutationPort, reader ports.CohortReaderPort, rngPort ports.RNGPort, store ports.ScreenStorePort, logger *internal.Logger) *ScreenService {
	return &ScreenService{
		engine: engine,
		reader: reader,
		rng:    rngPort,
		store:  store,
		logger: logger.With("screen"),
	}
}

// ScreenFile loads a cohort from a data file and screens it
func (s *ScreenService) ScreenFile(ctx context.Context, req ScreenRequest) (*stats.ScreenResult, error) {
	bundle, err := s.reader.ReadCohort(ctx, req.Path, req.Spec)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load cohort from %s", req.Path)
	}
	return s.ScreenBundle(ctx, bundle, req.NumPermutations, req.Alpha, req.Seed)
}

// ScreenBundle runs the permutation screen over an already-built cohort
// bundle. The run either fully succeeds or fails; no partial screens are
// returned or persisted.
func (s *ScreenService) ScreenBundle(ctx context.Context, bundle *cohort.Bundle, numPermutations int, alpha float64, seed int64) (*stats.ScreenResult, error) {
	if err := bundle.Validate(); err != nil {
		return nil, err
	}

	manifest := stats.NewScreenManifest(bundle.CohortID, seed, numPermutations, alpha)
	if err := manifest.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid screen parameters")
	}

	// The stream depends on the seed alone, so a rerun with the same seed
	// and cohort reproduces every p-value exactly.
	stream, err := s.rng.SeededStream(ctx, "permutation-screen", seed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create rng stream")
	}

	started := time.Now()
	results, err := s.engine.Run(ctx, bundle.Labels, bundle.Outcomes, numPermutations, stream)
	if err != nil {
		return nil, err
	}

	shortlist, err := s.buildShortlist(bundle, results, alpha)
	if err != nil {
		return nil, err
	}

	manifest.ColumnsTested = bundle.ColumnCount()
	manifest.ShortlistCount = len(shortlist)
	manifest.RuntimeMs = time.Since(started).Milliseconds()

	s.logger.Info("screen %s: %d columns, %d shortlisted at alpha=%g in %dms",
		manifest.ScreenID, manifest.ColumnsTested, manifest.ShortlistCount, alpha, manifest.RuntimeMs)

	screen := &stats.ScreenResult{
		Manifest:  *manifest,
		Results:   results,
		Shortlist: shortlist,
	}

	if s.store != nil {
		if err := s.store.SaveScreen(ctx, screen); err != nil {
			return nil, errors.Wrap(err, "failed to persist screen")
		}
	}
	return screen, nil
}

// GetScreen fetches a persisted screen by ID
func (s *ScreenService) GetScreen(ctx context.Context, screenID core.ScreenID) (*stats.ScreenResult, error) {
	if s.store == nil {
		return nil, errors.NotFound("screen store")
	}
	return s.store.GetScreen(ctx, screenID)
}

// ListScreens returns persisted screen manifests, newest first
func (s *ScreenService) ListScreens(ctx context.Context, limit int) ([]stats.ScreenManifest, error) {
	if s.store == nil {
		return nil, errors.NotFound("screen store")
	}
	return s.store.ListManifests(ctx, limit)
}

// buildShortlist selects columns whose permutation p-value clears alpha and
// attaches the Welch cross-check to each, ordered by p-value then name.
func (s *ScreenService) buildShortlist(bundle *cohort.Bundle, results map[core.VariableKey]stats.TestResult, alpha float64) ([]stats.ShortlistEntry, error) {
	shortlist := make([]stats.ShortlistEntry, 0)
	for _, key := range bundle.Columns {
		result, ok := results[key]
		if !ok || result.PValue >= alpha {
			continue
		}

		values := bundle.Outcomes[key]
		groupA, groupB := splitByLabel(bundle.Labels, values)
		check, err := welch.TTest(key, groupA, groupB)
		if err != nil {
			return nil, err
		}

		shortlist = append(shortlist, stats.ShortlistEntry{
			Variable: key,
			Observed: result.Observed,
			PValue:   result.PValue,
			WelchP:   check.PValue,
		})
	}

	sort.Slice(shortlist, func(i, j int) bool {
		if shortlist[i].PValue != shortlist[j].PValue {
			return shortlist[i].PValue < shortlist[j].PValue
		}
		return shortlist[i].Variable < shortlist[j].Variable
	})
	return shortlist, nil
}

// splitByLabel partitions values by group, keeping NaNs for the t-test's
// own omit policy
func splitByLabel(labels []cohort.Label, values []float64) (groupA, groupB []float64) {
	for i, l := range labels {
		switch l {
		case cohort.GroupA:
			groupA = append(groupA, values[i])
		case cohort.GroupB:
			groupB = append(groupB, values[i])
		}
	}
	return groupA, groupB
}
