package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"permscreen/domain/core"
	"permscreen/domain/stats"
	"permscreen/internal/errors"
	"permscreen/ports"
)

// ScreenRepositoryImpl implements ScreenStorePort for PostgreSQL.
// Raw null-distribution draws are never written; each result row carries
// only the null summary as JSONB.
type ScreenRepositoryImpl struct {
	db *sqlx.DB
}

// NewScreenRepository creates a new PostgreSQL screen repository
func NewScreenRepository(db *sqlx.DB) ports.ScreenStorePort {
	return &ScreenRepositoryImpl{db: db}
}

// SaveScreen persists a manifest, its per-column results, and the shortlist
// in a single transaction. Re-saving a screen replaces its rows.
func (r *ScreenRepositoryImpl) SaveScreen(ctx context.Context, result *stats.ScreenResult) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("begin screen save", err)
	}
	defer tx.Rollback()

	m := result.Manifest
	_, err = tx.ExecContext(ctx, `
		INSERT INTO screens (
			id, cohort_id, seed, num_permutations, alpha,
			columns_tested, shortlist_count, runtime_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			columns_tested = EXCLUDED.columns_tested,
			shortlist_count = EXCLUDED.shortlist_count,
			runtime_ms = EXCLUDED.runtime_ms`,
		string(m.ScreenID), string(m.CohortID), m.Seed, m.NumPermutations, m.Alpha,
		m.ColumnsTested, m.ShortlistCount, m.RuntimeMs, m.CreatedAt.Time())
	if err != nil {
		return errors.DatabaseError("save screen manifest", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM screen_results WHERE screen_id = $1`, string(m.ScreenID)); err != nil {
		return errors.DatabaseError("clear screen results", err)
	}

	for _, tr := range result.Results {
		nullJSON, err := json.Marshal(tr.Null)
		if err != nil {
			return errors.DatabaseError("encode null summary", err)
		}
		shortlisted := false
		welchP := sql.NullFloat64{}
		for _, entry := range result.Shortlist {
			if entry.Variable == tr.Variable {
				shortlisted = true
				welchP = sql.NullFloat64{Float64: entry.WelchP, Valid: entry.WelchP != 0}
				break
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO screen_results (
				screen_id, variable, observed, p_value, p_value_greater,
				group_a_size, group_b_size, num_permutations,
				null_summary, shortlisted, welch_p
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			string(m.ScreenID), string(tr.Variable), tr.Observed, tr.PValue, tr.PValueGreater,
			tr.GroupASize, tr.GroupBSize, tr.NumPermutations,
			nullJSON, shortlisted, welchP)
		if err != nil {
			return errors.DatabaseError(fmt.Sprintf("save result for %s", tr.Variable), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("commit screen save", err)
	}
	return nil
}

// GetScreen loads a manifest and reassembles its results and shortlist
func (r *ScreenRepositoryImpl) GetScreen(ctx context.Context, screenID core.ScreenID) (*stats.ScreenResult, error) {
	manifest, err := r.getManifest(ctx, screenID)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT variable, observed, p_value, p_value_greater,
		       group_a_size, group_b_size, num_permutations,
		       null_summary, shortlisted, welch_p
		FROM screen_results
		WHERE screen_id = $1
		ORDER BY p_value ASC, variable ASC
	`, string(screenID))
	if err != nil {
		return nil, errors.DatabaseError("load screen results", err)
	}
	defer rows.Close()

	result := &stats.ScreenResult{
		Manifest: *manifest,
		Results:  make(map[core.VariableKey]stats.TestResult),
	}

	for rows.Next() {
		var tr stats.TestResult
		var variable string
		var nullJSON []byte
		var shortlisted bool
		var welchP sql.NullFloat64

		err := rows.Scan(
			&variable, &tr.Observed, &tr.PValue, &tr.PValueGreater,
			&tr.GroupASize, &tr.GroupBSize, &tr.NumPermutations,
			&nullJSON, &shortlisted, &welchP,
		)
		if err != nil {
			return nil, errors.DatabaseError("scan screen result", err)
		}
		tr.Variable = core.VariableKey(variable)
		if len(nullJSON) > 0 {
			if err := json.Unmarshal(nullJSON, &tr.Null); err != nil {
				return nil, errors.DatabaseError("decode null summary", err)
			}
		}
		result.Results[tr.Variable] = tr

		if shortlisted {
			entry := stats.ShortlistEntry{
				Variable: tr.Variable,
				Observed: tr.Observed,
				PValue:   tr.PValue,
			}
			if welchP.Valid {
				entry.WelchP = welchP.Float64
			}
			result.Shortlist = append(result.Shortlist, entry)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("iterate screen results", err)
	}

	return result, nil
}

// ListManifests returns manifests newest-first, optionally limited
func (r *ScreenRepositoryImpl) ListManifests(ctx context.Context, limit int) ([]stats.ScreenManifest, error) {
	query := `
		SELECT id, cohort_id, seed, num_permutations, alpha,
		       columns_tested, shortlist_count, runtime_ms, created_at
		FROM screens
		ORDER BY created_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.DatabaseError("list screen manifests", err)
	}
	defer rows.Close()

	var manifests []stats.ScreenManifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, *m)
	}
	return manifests, rows.Err()
}

func (r *ScreenRepositoryImpl) getManifest(ctx context.Context, screenID core.ScreenID) (*stats.ScreenManifest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, cohort_id, seed, num_permutations, alpha,
		       columns_tested, shortlist_count, runtime_ms, created_at
		FROM screens
		WHERE id = $1
	`, string(screenID))

	m, err := scanManifest(row)
	if err == sql.ErrNoRows {
		return nil, core.NewNotFoundError("screen", string(screenID))
	}
	return m, err
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanManifest(row rowScanner) (*stats.ScreenManifest, error) {
	var m stats.ScreenManifest
	var id, cohortID string
	var createdAt sql.NullTime

	err := row.Scan(
		&id, &cohortID, &m.Seed, &m.NumPermutations, &m.Alpha,
		&m.ColumnsTested, &m.ShortlistCount, &m.RuntimeMs, &createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, errors.DatabaseError("scan screen manifest", err)
	}
	m.ScreenID = core.ScreenID(id)
	m.CohortID = core.CohortID(cohortID)
	if createdAt.Valid {
		m.CreatedAt = core.NewTimestamp(createdAt.Time)
	}
	return &m, nil
}
