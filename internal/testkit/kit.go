package testkit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"permscreen/adapters/rng"
	"permscreen/domain/cohort"
	"permscreen/domain/core"
	"permscreen/domain/stats"
	"permscreen/ports"
)

// TestKit provides testing fixtures: deterministic RNG streams, synthetic
// labeled cohorts with a known planted effect, and an in-memory screen store.
type TestKit struct{}

// NewTestKit creates a new test kit instance
func NewTestKit() *TestKit {
	return &TestKit{}
}

// RNGAdapter returns a deterministic RNG adapter
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return rng.NewSeededAdapter()
}

// ScreenStore returns an empty in-memory screen store
func (t *TestKit) ScreenStore() *InMemoryScreenStore {
	return NewInMemoryScreenStore()
}

// CohortSpec describes a synthetic cohort to generate
type CohortSpec struct {
	Observations  int     // per group
	Columns       int     // outcome columns
	Effect        float64 // mean shift added to group A in affected columns
	AffectedEvery int     // every k-th column carries the effect; 0 = none
	MissingRate   float64 // probability any single value is NaN
	Seed          int64
}

// SyntheticCohort generates a labeled bundle with a planted group effect in
// a known subset of columns, for exercising screens end to end.
func (t *TestKit) SyntheticCohort(spec CohortSpec) *cohort.Bundle {
	source := rand.New(rand.NewSource(spec.Seed))

	n := spec.Observations * 2
	labels := make([]cohort.Label, n)
	for i := range labels {
		if i < spec.Observations {
			labels[i] = cohort.GroupA
		} else {
			labels[i] = cohort.GroupB
		}
	}

	bundle := cohort.NewBundle(core.CohortID(fmt.Sprintf("synthetic-%d", spec.Seed)), labels)
	for c := 0; c < spec.Columns; c++ {
		affected := spec.AffectedEvery > 0 && c%spec.AffectedEvery == 0
		values := make([]float64, n)
		for i := range values {
			v := source.NormFloat64()
			if affected && labels[i] == cohort.GroupA {
				v += spec.Effect
			}
			if spec.MissingRate > 0 && source.Float64() < spec.MissingRate {
				v = math.NaN()
			}
			values[i] = v
		}
		// lengths match by construction
		_ = bundle.AddColumn(core.VariableKey(fmt.Sprintf("NP_%06d", c)), values)
	}
	return bundle
}

// InMemoryScreenStore implements ports.ScreenStorePort for tests
type InMemoryScreenStore struct {
	mu      sync.RWMutex
	screens map[core.ScreenID]*stats.ScreenResult
	order   []core.ScreenID
}

// NewInMemoryScreenStore creates an empty store
func NewInMemoryScreenStore() *InMemoryScreenStore {
	return &InMemoryScreenStore{screens: make(map[core.ScreenID]*stats.ScreenResult)}
}

// SaveScreen stores a screen result
func (s *InMemoryScreenStore) SaveScreen(ctx context.Context, result *stats.ScreenResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.screens[result.Manifest.ScreenID]; !exists {
		s.order = append(s.order, result.Manifest.ScreenID)
	}
	s.screens[result.Manifest.ScreenID] = result
	return nil
}

// GetScreen fetches a stored screen result
func (s *InMemoryScreenStore) GetScreen(ctx context.Context, screenID core.ScreenID) (*stats.ScreenResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.screens[screenID]
	if !ok {
		return nil, core.NewNotFoundError("screen", screenID.String())
	}
	return result, nil
}

// ListManifests returns the most recent manifests, newest first
func (s *InMemoryScreenStore) ListManifests(ctx context.Context, limit int) ([]stats.ScreenManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	manifests := make([]stats.ScreenManifest, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(manifests) < limit; i-- {
		manifests = append(manifests, s.screens[s.order[i]].Manifest)
	}
	return manifests, nil
}
