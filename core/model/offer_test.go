package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to OfferStatus }{
		{OfferPending, OfferAccepted},
		{OfferPending, OfferRefused},
		{OfferPending, OfferExpired},
		{OfferAccepted, OfferConfirmed},
		{OfferAccepted, OfferExpired},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
	denied := []struct{ from, to OfferStatus }{
		{OfferPending, OfferConfirmed},
		{OfferAccepted, OfferRefused},
		{OfferRefused, OfferAccepted},
		{OfferExpired, OfferPending},
		{OfferConfirmed, OfferExpired},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestOfferTransitionKeepsSnapshot(t *testing.T) {
	o := Offer{OpportunityID: "m1", CandidateID: "c1", Status: OfferPending, Score: ScoreSnapshot{Match: 0.7, Skill: 1}}
	next, err := o.Transition(OfferAccepted)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	assert.Equal(t, OfferAccepted, next.Status)
	assert.Equal(t, o.Score, next.Score)
	assert.Equal(t, OfferPending, o.Status, "original must not change")

	_, err = next.Transition(OfferRefused)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition got %v", err)
	}
}

func TestOfferDue(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	o := Offer{Status: OfferPending, ExpiresAt: now}
	assert.True(t, o.Due(now))
	assert.False(t, o.Due(now.Add(-time.Second)))
	o.Status = OfferAccepted
	assert.False(t, o.Due(now.Add(time.Hour)))
}

func TestOpportunityValidate(t *testing.T) {
	assert.Error(t, Opportunity{}.Validate())
	assert.Error(t, Opportunity{ID: "m1"}.Validate())
	assert.Error(t, Opportunity{ID: "m1", Title: "t", RequiresPresence: true}.Validate())
	fr := "FR"
	assert.NoError(t, Opportunity{ID: "m1", Title: "t", RequiresPresence: true, Region: &fr}.Validate())
	assert.Error(t, Opportunity{ID: "m1", Title: "t", Status: "bogus"}.Validate())
}

func TestCandidateDefaults(t *testing.T) {
	c := CandidateProfile{ID: "c1"}
	assert.Equal(t, UnknownGroup, c.Group())
	assert.Equal(t, DefaultReputation, c.ReputationOr(DefaultReputation))
	r := 0.9
	c.Reputation = &r
	c.Region = "SN"
	assert.Equal(t, "SN", c.Group())
	assert.Equal(t, 0.9, c.ReputationOr(DefaultReputation))
	assert.Equal(t, 1.0, ClampReputation(1.3))
	assert.Equal(t, 0.0, ClampReputation(-0.1))
}
