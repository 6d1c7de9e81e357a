package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"permscreen/internal/errors"
)

// EnsureSchema creates the screen tables if they do not exist
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS screens (
			id TEXT PRIMARY KEY,
			cohort_id TEXT NOT NULL,
			seed BIGINT NOT NULL,
			num_permutations INTEGER NOT NULL,
			alpha DOUBLE PRECISION NOT NULL,
			columns_tested INTEGER NOT NULL DEFAULT 0,
			shortlist_count INTEGER NOT NULL DEFAULT 0,
			runtime_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS screen_results (
			screen_id TEXT NOT NULL REFERENCES screens(id) ON DELETE CASCADE,
			variable TEXT NOT NULL,
			observed DOUBLE PRECISION NOT NULL,
			p_value DOUBLE PRECISION NOT NULL,
			p_value_greater DOUBLE PRECISION NOT NULL,
			group_a_size INTEGER NOT NULL,
			group_b_size INTEGER NOT NULL,
			num_permutations INTEGER NOT NULL,
			null_summary JSONB,
			shortlisted BOOLEAN NOT NULL DEFAULT FALSE,
			welch_p DOUBLE PRECISION,
			PRIMARY KEY (screen_id, variable)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_screen_results_p_value
			ON screen_results (screen_id, p_value)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.DatabaseError("ensure screen schema", err)
		}
	}
	return nil
}
