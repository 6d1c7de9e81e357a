package rng

import (
	"context"
	"fmt"
	"math/rand"

	"permscreen/domain/core"
)

// SeededAdapter implements ports.RNGPort with plain seeded math/rand
// streams. Screens must never own a process-wide random source; every
// operation gets its own stream derived from an explicit seed.
type SeededAdapter struct{}

// NewSeededAdapter creates the default RNG adapter
func NewSeededAdapter() *SeededAdapter {
	return &SeededAdapter{}
}

// SeededStream creates a deterministic random number generator for a named operation
func (a *SeededAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(seed)), nil
}

// Stream creates a deterministic RNG stream for a specific screen/stage.
// The sub-seed mixes the identifiers so identical screen/stage/column
// combinations replay identically while distinct ones diverge.
func (a *SeededAdapter) Stream(ctx context.Context, screenID, stageName, columnKey string, baseSeed int64) (*rand.Rand, error) {
	seed := baseSeed
	if screenID != "" {
		seed += int64(hashString(screenID))
	}
	if stageName != "" {
		seed += int64(hashString(stageName))
	}
	if columnKey != "" {
		seed += int64(hashString(columnKey))
	}
	return rand.New(rand.NewSource(seed)), nil
}

// ValidateSeed ensures the seed produces the expected leading draws
func (a *SeededAdapter) ValidateSeed(ctx context.Context, name string, seed int64, expected []float64) error {
	stream := rand.New(rand.NewSource(seed))
	for i, want := range expected {
		if got := stream.Float64(); got != want {
			return fmt.Errorf("%w: stream %s draw %d produced %v, expected %v", core.ErrSeedMismatch, name, i, got, want)
		}
	}
	return nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
