package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kilianp07/wavematch/core/model"
	"github.com/kilianp07/wavematch/core/store"
)

// OfferStore implements store.OfferStore using PostgreSQL.
type OfferStore struct {
	pool *Pool
}

var _ store.OfferStore = (*OfferStore)(nil)

const offerColumns = `id, opportunity_id, candidate_id, grp, wave, status, score,
	dispatched_at, expires_at, responded_at, comment`

func scanOffer(row pgx.Row) (model.Offer, error) {
	var (
		o      model.Offer
		status string
	)
	err := row.Scan(&o.ID, &o.OpportunityID, &o.CandidateID, &o.Group, &o.Wave, &status, &o.Score,
		&o.DispatchedAt, &o.ExpiresAt, &o.RespondedAt, &o.Comment)
	o.Status = model.OfferStatus(status)
	return o, err
}

func (s *OfferStore) collect(ctx context.Context, op, query string, args ...any) ([]model.Offer, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Offer, error) {
		return scanOffer(r)
	})
	if err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

// Create inserts all offers in one transaction.
func (s *OfferStore) Create(ctx context.Context, offers []model.Offer) error {
	return s.Apply(ctx, store.Transition{Create: offers})
}

func (s *OfferStore) Get(ctx context.Context, key model.OfferKey) (model.Offer, error) {
	o, err := scanOffer(s.pool.QueryRow(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE opportunity_id = $1 AND candidate_id = $2`,
		key.OpportunityID, key.CandidateID))
	if err != nil {
		if isNotFoundError(err) {
			return model.Offer{}, fmt.Errorf("offer %s: %w", key, store.ErrNotFound)
		}
		return model.Offer{}, unavailable("get offer", err)
	}
	return o, nil
}

func (s *OfferStore) ListByOpportunity(ctx context.Context, opportunityID string) ([]model.Offer, error) {
	return s.collect(ctx, "list offers",
		`SELECT `+offerColumns+` FROM offers WHERE opportunity_id = $1 ORDER BY seq`, opportunityID)
}

func (s *OfferStore) ListDue(ctx context.Context, now time.Time) ([]model.Offer, error) {
	return s.collect(ctx, "list due offers",
		`SELECT `+offerColumns+` FROM offers
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at, opportunity_id, candidate_id`, now)
}

func (s *OfferStore) OpenCounts(ctx context.Context, candidateIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(candidateIDs))
	if len(candidateIDs) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT candidate_id, count(*) FROM offers
		WHERE status IN ('pending', 'accepted') AND candidate_id = ANY($1)
		GROUP BY candidate_id`, candidateIDs)
	if err != nil {
		return nil, unavailable("count open offers", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, unavailable("count open offers", err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("count open offers", err)
	}
	return out, nil
}

// Apply runs the transition in one transaction. Guarded rows are locked
// with SELECT ... FOR UPDATE before anything is written.
func (s *OfferStore) Apply(ctx context.Context, t store.Transition) error {
	if t.Empty() {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := applyTransition(ctx, tx, t); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func applyTransition(ctx context.Context, tx pgx.Tx, t store.Transition) error {
	if u := t.Opportunity; u != nil {
		var (
			status  string
			version int64
		)
		err := tx.QueryRow(ctx, `SELECT status, version FROM opportunities WHERE id = $1 FOR UPDATE`, u.Next.ID).
			Scan(&status, &version)
		if err != nil {
			if isNotFoundError(err) {
				return fmt.Errorf("opportunity %s: %w", u.Next.ID, store.ErrNotFound)
			}
			return unavailable("lock opportunity", err)
		}
		if model.OpportunityStatus(status) != u.ExpectStatus || version != u.ExpectVersion {
			return fmt.Errorf("opportunity %s is %s@%d, expected %s@%d: %w",
				u.Next.ID, status, version, u.ExpectStatus, u.ExpectVersion, store.ErrConflict)
		}
	}
	for _, u := range t.Offers {
		k := u.Next.Key()
		var status string
		err := tx.QueryRow(ctx,
			`SELECT status FROM offers WHERE opportunity_id = $1 AND candidate_id = $2 FOR UPDATE`,
			k.OpportunityID, k.CandidateID).Scan(&status)
		if err != nil {
			if isNotFoundError(err) {
				return fmt.Errorf("offer %s: %w", k, store.ErrNotFound)
			}
			return unavailable("lock offer", err)
		}
		if model.OfferStatus(status) != u.ExpectStatus {
			return fmt.Errorf("offer %s is %s, expected %s: %w", k, status, u.ExpectStatus, store.ErrConflict)
		}
	}

	if u := t.Opportunity; u != nil {
		if _, err := updateOpportunity(ctx, tx, u.Next, "", u.ExpectVersion); err != nil {
			return err
		}
	}
	for _, o := range t.Create {
		_, err := tx.Exec(ctx, `
			INSERT INTO offers (`+offerColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			o.ID, o.OpportunityID, o.CandidateID, o.Group, o.Wave, string(o.Status), o.Score,
			o.DispatchedAt, o.ExpiresAt, o.RespondedAt, o.Comment)
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("offer %s: %w", o.Key(), store.ErrDuplicateKey)
			}
			return unavailable("insert offer", err)
		}
	}
	for _, u := range t.Offers {
		o := u.Next
		_, err := tx.Exec(ctx, `
			UPDATE offers SET status = $3, responded_at = $4, comment = $5
			WHERE opportunity_id = $1 AND candidate_id = $2`,
			o.OpportunityID, o.CandidateID, string(o.Status), o.RespondedAt, o.Comment)
		if err != nil {
			return unavailable("update offer", err)
		}
	}
	return nil
}
