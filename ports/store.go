package ports

import (
	"context"

	"permscreen/domain/core"
	"permscreen/domain/stats"
)

// ScreenStorePort persists screen manifests and per-column results.
// Null distributions are never persisted; only their summaries travel with
// each TestResult.
type ScreenStorePort interface {
	SaveScreen(ctx context.Context, result *stats.ScreenResult) error
	GetScreen(ctx context.Context, screenID core.ScreenID) (*stats.ScreenResult, error)
	ListManifests(ctx context.Context, limit int) ([]stats.ScreenManifest, error)
}
