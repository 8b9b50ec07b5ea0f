package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when the offer state machine forbids a move.
var ErrInvalidTransition = errors.New("invalid offer transition")

// OfferStatus is the state of an offer.
type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferRefused   OfferStatus = "refused"
	OfferExpired   OfferStatus = "expired"
	OfferConfirmed OfferStatus = "confirmed"
)

// Terminal reports whether no further transition is possible.
func (s OfferStatus) Terminal() bool {
	return s == OfferRefused || s == OfferExpired || s == OfferConfirmed
}

// Open reports whether the offer still counts toward the candidate workload.
func (s OfferStatus) Open() bool {
	return s == OfferPending || s == OfferAccepted
}

var transitions = map[OfferStatus][]OfferStatus{
	OfferPending:  {OfferAccepted, OfferRefused, OfferExpired},
	OfferAccepted: {OfferConfirmed, OfferExpired},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to OfferStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OfferKey identifies an offer: one candidate per opportunity.
type OfferKey struct {
	OpportunityID string `json:"opportunity_id"`
	CandidateID   string `json:"candidate_id"`
}

func (k OfferKey) String() string { return k.OpportunityID + "/" + k.CandidateID }

// ScoreSnapshot freezes the component scores used when an offer was created.
type ScoreSnapshot struct {
	Match       float64 `json:"match"`
	Skill       float64 `json:"skill"`
	Reputation  float64 `json:"reputation"`
	Recency     float64 `json:"recency"`
	WorkloadPen float64 `json:"workload_pen"`
}

// Offer is a time-bounded proposal of an opportunity to one candidate.
type Offer struct {
	ID            string        `json:"id"`
	OpportunityID string        `json:"opportunity_id"`
	CandidateID   string        `json:"candidate_id"`
	Group         string        `json:"group"`
	Wave          int           `json:"wave"`
	Status        OfferStatus   `json:"status"`
	Score         ScoreSnapshot `json:"score"`
	DispatchedAt  time.Time     `json:"dispatched_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
	RespondedAt   *time.Time    `json:"responded_at,omitempty"`
	Comment       *string       `json:"comment,omitempty"`
}

// Key returns the composite key of the offer.
func (o Offer) Key() OfferKey {
	return OfferKey{OpportunityID: o.OpportunityID, CandidateID: o.CandidateID}
}

// Due reports whether a pending offer reached its deadline at now.
func (o Offer) Due(now time.Time) bool {
	return o.Status == OfferPending && !now.Before(o.ExpiresAt)
}

// Transition returns a copy of o moved to status to. The snapshot is never
// touched.
func (o Offer) Transition(to OfferStatus) (Offer, error) {
	if !CanTransition(o.Status, to) {
		return o, fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, o.Status, to, o.Key())
	}
	next := o.Clone()
	next.Status = to
	return next, nil
}

// Clone returns a deep copy of o.
func (o Offer) Clone() Offer {
	c := o
	if o.RespondedAt != nil {
		t := *o.RespondedAt
		c.RespondedAt = &t
	}
	if o.Comment != nil {
		s := *o.Comment
		c.Comment = &s
	}
	return c
}
