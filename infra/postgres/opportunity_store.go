package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kilianp07/wavematch/core/model"
	"github.com/kilianp07/wavematch/core/store"
)

// OpportunityStore implements store.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *Pool
}

var _ store.OpportunityStore = (*OpportunityStore)(nil)

const opportunityColumns = `id, title, problem_statement, required_skills, region, requires_presence,
	locales, elastic_scope, allow_multiple_quotes, status, wave, version, created_at, selected_candidate`

func scanOpportunity(row pgx.Row) (model.Opportunity, error) {
	var (
		o        model.Opportunity
		status   string
		selected *string
	)
	err := row.Scan(&o.ID, &o.Title, &o.ProblemStatement, &o.RequiredSkills, &o.Region, &o.RequiresPresence,
		&o.Locales, &o.ElasticScope, &o.AllowMultipleQuotes, &status, &o.Wave, &o.Version, &o.CreatedAt, &selected)
	if err != nil {
		return o, err
	}
	o.Status = model.OpportunityStatus(status)
	if selected != nil {
		o.SelectedOffer = &model.OfferKey{OpportunityID: o.ID, CandidateID: *selected}
	}
	return o, nil
}

func selectedCandidate(o model.Opportunity) *string {
	if o.SelectedOffer == nil {
		return nil
	}
	return &o.SelectedOffer.CandidateID
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *OpportunityStore) Get(ctx context.Context, id string) (model.Opportunity, error) {
	return getOpportunity(ctx, s.pool, id)
}

func getOpportunity(ctx context.Context, q querier, id string) (model.Opportunity, error) {
	o, err := scanOpportunity(q.QueryRow(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = $1`, id))
	if err != nil {
		if isNotFoundError(err) {
			return model.Opportunity{}, fmt.Errorf("opportunity %s: %w", id, store.ErrNotFound)
		}
		return model.Opportunity{}, unavailable("get opportunity", err)
	}
	return o, nil
}

// Create inserts o with version 1.
func (s *OpportunityStore) Create(ctx context.Context, o model.Opportunity) error {
	if err := o.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO opportunities (`+opportunityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)`,
		o.ID, o.Title, o.ProblemStatement, orEmpty(o.RequiredSkills), o.Region, o.RequiresPresence,
		orEmpty(o.Locales), o.ElasticScope, o.AllowMultipleQuotes, string(o.Status), o.Wave, o.CreatedAt,
		selectedCandidate(o))
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("opportunity %s: %w", o.ID, store.ErrDuplicateKey)
		}
		return unavailable("insert opportunity", err)
	}
	return nil
}

// Update writes o when the stored version equals o.Version.
func (s *OpportunityStore) Update(ctx context.Context, o model.Opportunity) (model.Opportunity, error) {
	tag, err := updateOpportunity(ctx, s.pool, o, "", o.Version)
	if err != nil {
		return model.Opportunity{}, err
	}
	if tag == 0 {
		cur, err := s.Get(ctx, o.ID)
		if err != nil {
			return model.Opportunity{}, err
		}
		return model.Opportunity{}, fmt.Errorf("opportunity %s version %d (stored %d): %w", o.ID, o.Version, cur.Version, store.ErrConflict)
	}
	o.Version++
	return o, nil
}

// updateOpportunity replaces the row guarded by version and, when status is
// not empty, by status. It returns the number of rows written.
func updateOpportunity(ctx context.Context, q querier, o model.Opportunity, status model.OpportunityStatus, version int64) (int64, error) {
	query := `
		UPDATE opportunities SET
			title = $2, problem_statement = $3, required_skills = $4, region = $5,
			requires_presence = $6, locales = $7, elastic_scope = $8, allow_multiple_quotes = $9,
			status = $10, wave = $11, created_at = $12, selected_candidate = $13,
			version = version + 1
		WHERE id = $1 AND version = $14`
	args := []any{
		o.ID, o.Title, o.ProblemStatement, orEmpty(o.RequiredSkills), o.Region,
		o.RequiresPresence, orEmpty(o.Locales), o.ElasticScope, o.AllowMultipleQuotes,
		string(o.Status), o.Wave, o.CreatedAt, selectedCandidate(o), version,
	}
	if status != "" {
		query += ` AND status = $15`
		args = append(args, string(status))
	}
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, unavailable("update opportunity", err)
	}
	return tag.RowsAffected(), nil
}

// List returns opportunities ordered by creation time then id.
func (s *OpportunityStore) List(ctx context.Context, statuses ...model.OpportunityStatus) ([]model.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities`
	var args []any
	if len(statuses) > 0 {
		st := make([]string, len(statuses))
		for i, v := range statuses {
			st[i] = string(v)
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, st)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list opportunities", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Opportunity, error) {
		return scanOpportunity(r)
	})
	if err != nil {
		return nil, unavailable("scan opportunities", err)
	}
	return out, nil
}
