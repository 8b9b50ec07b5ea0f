// Package store declares the persistence contracts of the matching engine and
// ships an in-memory backend. A PostgreSQL backend lives in infra/postgres.
//
// Offers and opportunities are only mutated through Apply, which writes a
// Transition atomically: either every guarded update lands or none does.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/wavematch/core/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable wraps backend failures that callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrConflict is returned when a guarded update lost a race.
	ErrConflict = errors.New("conflicting update")
	// ErrDuplicateKey is returned when an offer already exists for a pair.
	ErrDuplicateKey = errors.New("duplicate key")
)

// CandidateFilter restricts ListCandidates. Zero values match everything.
type CandidateFilter struct {
	Region string
	IDs    []string
}

// ProfileStore reads candidate profiles.
type ProfileStore interface {
	ListCandidates(ctx context.Context, f CandidateFilter) ([]model.CandidateProfile, error)
	Get(ctx context.Context, id string) (model.CandidateProfile, error)
	// UpdateReputation adds delta to the reputation, clamped to [0,1], and
	// returns the new value. Unrated candidates start from the default.
	UpdateReputation(ctx context.Context, id string, delta float64) (float64, error)
	Upsert(ctx context.Context, c model.CandidateProfile) error
}

// OpportunityStore persists opportunities.
type OpportunityStore interface {
	Get(ctx context.Context, id string) (model.Opportunity, error)
	Create(ctx context.Context, o model.Opportunity) error
	// Update replaces the stored opportunity when its version matches
	// o.Version and bumps the version.
	Update(ctx context.Context, o model.Opportunity) (model.Opportunity, error)
	// List returns opportunities in any of the statuses, all when empty.
	List(ctx context.Context, statuses ...model.OpportunityStatus) ([]model.Opportunity, error)
}

// OfferStore persists offers. Offers are never deleted.
type OfferStore interface {
	// Create inserts all offers or none. A repeated (opportunity,
	// candidate) pair fails with ErrDuplicateKey.
	Create(ctx context.Context, offers []model.Offer) error
	Get(ctx context.Context, key model.OfferKey) (model.Offer, error)
	// ListByOpportunity returns offers in creation order.
	ListByOpportunity(ctx context.Context, opportunityID string) ([]model.Offer, error)
	// ListDue returns pending offers whose deadline is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]model.Offer, error)
	// OpenCounts returns the number of pending and accepted offers per
	// candidate.
	OpenCounts(ctx context.Context, candidateIDs []string) (map[string]int, error)
	Apply(ctx context.Context, t Transition) error
}

// OpportunityUpdate replaces an opportunity if it is still in ExpectStatus at
// ExpectVersion. The stored version becomes ExpectVersion+1.
type OpportunityUpdate struct {
	Next          model.Opportunity
	ExpectStatus  model.OpportunityStatus
	ExpectVersion int64
}

// OfferUpdate replaces an offer if it is still in ExpectStatus.
type OfferUpdate struct {
	Next         model.Offer
	ExpectStatus model.OfferStatus
}

// Transition groups the writes of one state-machine step.
type Transition struct {
	Opportunity *OpportunityUpdate
	Create      []model.Offer
	Offers      []OfferUpdate
}

// Empty reports whether the transition writes nothing.
func (t Transition) Empty() bool {
	return t.Opportunity == nil && len(t.Create) == 0 && len(t.Offers) == 0
}

// Backend bundles the three stores of one persistence technology.
type Backend interface {
	Profiles() ProfileStore
	Opportunities() OpportunityStore
	Offers() OfferStore
	Close() error
}
