package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/kilianp07/wavematch/core/model"
	"github.com/kilianp07/wavematch/core/store"
)

// ProfileStore implements store.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *Pool
}

var _ store.ProfileStore = (*ProfileStore)(nil)

const candidateColumns = `id, name, skills, region, reputation, last_active, workload`

func scanCandidate(row pgx.Row) (model.CandidateProfile, error) {
	var c model.CandidateProfile
	err := row.Scan(&c.ID, &c.Name, &c.Skills, &c.Region, &c.Reputation, &c.LastActive, &c.Workload)
	return c, err
}

// ListCandidates returns profiles ordered by id. The region match ignores
// case.
func (s *ProfileStore) ListCandidates(ctx context.Context, f store.CandidateFilter) ([]model.CandidateProfile, error) {
	var (
		where []string
		args  []any
	)
	if f.Region != "" {
		args = append(args, f.Region)
		where = append(where, fmt.Sprintf("lower(region) = lower($%d)", len(args)))
	}
	if len(f.IDs) > 0 {
		args = append(args, f.IDs)
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	query := `SELECT ` + candidateColumns + ` FROM candidates`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list candidates", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.CandidateProfile, error) {
		return scanCandidate(r)
	})
	if err != nil {
		return nil, unavailable("scan candidates", err)
	}
	return out, nil
}

func (s *ProfileStore) Get(ctx context.Context, id string) (model.CandidateProfile, error) {
	c, err := scanCandidate(s.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id))
	if err != nil {
		if isNotFoundError(err) {
			return model.CandidateProfile{}, fmt.Errorf("candidate %s: %w", id, store.ErrNotFound)
		}
		return model.CandidateProfile{}, unavailable("get candidate", err)
	}
	return c, nil
}

// UpdateReputation applies delta in a single statement so concurrent
// updates never lose one another.
func (s *ProfileStore) UpdateReputation(ctx context.Context, id string, delta float64) (float64, error) {
	var v float64
	err := s.pool.QueryRow(ctx, `
		UPDATE candidates
		SET reputation = LEAST(1, GREATEST(0, COALESCE(reputation, $2) + $3))
		WHERE id = $1
		RETURNING reputation`, id, model.DefaultReputation, delta).Scan(&v)
	if err != nil {
		if isNotFoundError(err) {
			return 0, fmt.Errorf("candidate %s: %w", id, store.ErrNotFound)
		}
		return 0, unavailable("update reputation", err)
	}
	return v, nil
}

func (s *ProfileStore) Upsert(ctx context.Context, c model.CandidateProfile) error {
	if c.ID == "" {
		return fmt.Errorf("candidate id is required")
	}
	skills := c.Skills
	if skills == nil {
		skills = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO candidates (`+candidateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			skills = EXCLUDED.skills,
			region = EXCLUDED.region,
			reputation = EXCLUDED.reputation,
			last_active = EXCLUDED.last_active,
			workload = EXCLUDED.workload`,
		c.ID, c.Name, skills, c.Region, c.Reputation, c.LastActive, c.Workload)
	if err != nil {
		return unavailable("upsert candidate", err)
	}
	return nil
}
