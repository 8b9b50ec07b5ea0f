package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/wavematch/core/events"
	"github.com/kilianp07/wavematch/core/model"
)

func key(opp, cand string) model.OfferKey {
	return model.OfferKey{OpportunityID: opp, CandidateID: cand}
}

// dispatched sets up one opportunity with a first wave sent to every
// candidate id given.
func dispatched(t *testing.T, h *harness, opp model.Opportunity, ids ...string) {
	t.Helper()
	for _, id := range ids {
		h.addCandidates(t, h.candidate(id, "FR", 0.5, "go"))
	}
	opp.RequiredSkills = []string{"go"}
	h.addOpportunity(t, opp)
	res, err := h.d.DispatchWave(context.Background(), opp.ID, WaveParams{WaveSize: len(ids), Timeout: 5 * time.Minute})
	require.NoError(t, err)
	require.Len(t, res.Offers, len(ids))
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("accept")
	require.NoError(t, err)
	assert.Equal(t, ActionAccept, a)
	_, err = ParseAction("maybe")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestAcceptSingleOfferExpiresOtherPending(t *testing.T) {
	h := newHarness(t)
	dispatched(t, h, model.Opportunity{ID: "m1"}, "a", "b")

	comment := "on it"
	got, err := h.d.RespondToOffer(context.Background(), key("m1", "a"), ActionAccept, &comment)
	require.NoError(t, err)
	assert.Equal(t, model.OfferAccepted, got.Status)
	require.NotNil(t, got.RespondedAt)
	assert.Equal(t, "on it", *got.Comment)

	assert.Equal(t, map[string]model.OfferStatus{"a": model.OfferAccepted, "b": model.OfferExpired}, h.statuses(t, "m1"))
	opp := h.opportunity(t, "m1")
	assert.Equal(t, model.OpportunityAccepted, opp.Status)
	require.NotNil(t, opp.SelectedOffer)
	assert.Equal(t, key("m1", "a"), *opp.SelectedOffer)

	assert.Equal(t, 1.0, testutil.ToFloat64(offerTransitions.WithLabelValues("pending", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(offerTransitions.WithLabelValues("pending", "expired")))

	reasons := map[string]string{}
	for _, ev := range h.drain() {
		if oe, ok := ev.(events.OfferEvent); ok {
			reasons[oe.Offer.CandidateID] = oe.Reason
		}
	}
	assert.Equal(t, map[string]string{"a": "response", "b": "quota"}, reasons)

	cand, err := h.mem.Profiles().Get(context.Background(), "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.52, *cand.Reputation, 1e-9)
}

func TestAcceptTwiceReportsNotPending(t *testing.T) {
	h := newHarness(t)
	dispatched(t, h, model.Opportunity{ID: "m1"}, "a", "b")

	_, err := h.d.RespondToOffer(context.Background(), key("m1", "a"), ActionAccept, nil)
	require.NoError(t, err)
	before := h.statuses(t, "m1")
	opp := h.opportunity(t, "m1")

	got, err := h.d.RespondToOffer(context.Background(), key("m1", "a"), ActionAccept, nil)
	require.ErrorIs(t, err, ErrOfferNotPending)
	assert.Equal(t, model.OfferAccepted, got.Status)
	assert.Equal(t, before, h.statuses(t, "m1"))
	assert.Equal(t, opp.Version, h.opportunity(t, "m1").Version)

	cand, err := h.mem.Profiles().Get(context.Background(), "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.52, *cand.Reputation, 1e-9, "reputation nudged once")
}

func TestRefuseHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	dispatched(t, h, model.Opportunity{ID: "m1"}, "a", "b")

	_, err := h.d.RespondToOffer(context.Background(), key("m1", "a"), ActionRefuse, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]model.OfferStatus{"a": model.OfferRefused, "b": model.OfferPending}, h.statuses(t, "m1"))
	assert.Equal(t, model.OpportunityMatching, h.opportunity(t, "m1").Status)

	cand, err := h.mem.Profiles().Get(context.Background(), "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.49, *cand.Reputation, 1e-9)
}

func TestZeroDeltasDisableReputationNudges(t *testing.T) {
	h := newHarness(t, withConfig(func(c *Config) {
		c.Reputation = ReputationDeltas{Accept: rep(0), Refuse: rep(0), Complete: rep(0), Expire: rep(0)}
	}))
	dispatched(t, h, model.Opportunity{ID: "m1"}, "a", "b")

	_, err := h.d.RespondToOffer(context.Background(), key("m1", "a"), ActionRefuse, nil)
	require.NoError(t, err)
	_, err = h.d.RespondToOffer(context.Background(), key("m1", "b"), ActionAccept, nil)
	require.NoError(t, err)

	for _, id := range []string{"a", "b"} {
		cand, err := h.mem.Profiles().Get(context.Background(), id)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, *cand.Reputation, 1e-9, id)
	}
}

func TestMultipleQuotesCloseAtAcceptanceQuota(t *testing.T) {
	h := newHarness(t, withConfig(func(c *Config) { c.AcceptanceQuota = 2 }))
	dispatched(t, h, model.Opportunity{ID: "m1", AllowMultipleQuotes: true}, "a", "b", "c")

	_, err := h.d.RespondToOffer(context.Background(), key("m1", "a"), ActionAccept, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OpportunityMatching, h.opportunity(t, "m1").Status)
	assert.Equal(t, model.OfferPending, h.statuses(t, "m1")["c"])

	_, err = h.d.RespondToOffer(context.Background(), key("m1", "b"), ActionAccept, nil)
	require.NoError(t, err)
	opp := h.opportunity(t, "m1")
	assert.Equal(t, model.OpportunityAccepted, opp.Status)
	assert.Nil(t, opp.SelectedOffer)
	assert.Equal(t, map[string]model.OfferStatus{
		"a": model.OfferAccepted, "b": model.OfferAccepted, "c": model.OfferExpired,
	}, h.statuses(t, "m1"))
}

func TestRespondAfterDeadline(t *testing.T) {
	h := newHarness(t)
	dispatched(t, h, model.Opportunity{ID: "m1"}, "a")
	h.clock.Advance(5 * time.Minute)

	_, err := h.d.RespondToOffer(context.Background(), key("m1", "a"), ActionAccept, nil)
	assert.ErrorIs(t, err, ErrOfferNotPending)
	assert.Equal(t, model.OfferPending, h.statuses(t, "m1")["a"])
}

func TestRespondUnknownOfferOrAction(t *testing.T) {
	h := newHarness(t)
	dispatched(t, h, model.Opportunity{ID: "m1"}, "a")

	_, err := h.d.RespondToOffer(context.Background(), key("m1", "a"), Action("maybe"), nil)
	assert.ErrorIs(t, err, ErrUnknownAction)
	_, err = h.d.RespondToOffer(context.Background(), key("m1", "zz"), ActionAccept, nil)
	assert.Error(t, err)
}

func TestConfirmSelectionIsExclusive(t *testing.T) {
	h := newHarness(t)
	dispatched(t, h, model.Opportunity{ID: "m1", AllowMultipleQuotes: true}, "a", "b", "c")
	for _, id := range []string{"a", "b"} {
		_, err := h.d.RespondToOffer(context.Background(), key("m1", id), ActionAccept, nil)
		require.NoError(t, err)
	}

	opp, err := h.d.ConfirmSelection(context.Background(), "m1", "b")
	require.NoError(t, err)
	assert.Equal(t, model.OpportunityConfirmed, opp.Status)
	assert.Equal(t, key("m1", "b"), *opp.SelectedOffer)

	confirmed, pending := 0, 0
	for _, s := range h.statuses(t, "m1") {
		switch s {
		case model.OfferConfirmed:
			confirmed++
		case model.OfferPending:
			pending++
		}
	}
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 0, pending)
	assert.Equal(t, model.OfferExpired, h.statuses(t, "m1")["a"])
	assert.Equal(t, 1.0, testutil.ToFloat64(offerTransitions.WithLabelValues("accepted", "expired")))

	_, err = h.d.ConfirmSelection(context.Background(), "m1", "a")
	assert.ErrorIs(t, err, ErrOfferNotAcceptable)
}

func TestConfirmRequiresAcceptedOffer(t *testing.T) {
	h := newHarness(t)
	dispatched(t, h, model.Opportunity{ID: "m1"}, "a", "b")
	before := h.statuses(t, "m1")

	_, err := h.d.ConfirmSelection(context.Background(), "m1", "a")
	require.ErrorIs(t, err, ErrOfferNotAcceptable)
	assert.Equal(t, before, h.statuses(t, "m1"))
	assert.Equal(t, model.OpportunityMatching, h.opportunity(t, "m1").Status)
}

func TestCompleteOpportunity(t *testing.T) {
	h := newHarness(t)
	dispatched(t, h, model.Opportunity{ID: "m1"}, "a")

	_, err := h.d.CompleteOpportunity(context.Background(), "m1")
	require.ErrorIs(t, err, ErrOpportunityNotConfirmed)

	_, err = h.d.RespondToOffer(context.Background(), key("m1", "a"), ActionAccept, nil)
	require.NoError(t, err)
	_, err = h.d.ConfirmSelection(context.Background(), "m1", "a")
	require.NoError(t, err)
	opp, err := h.d.CompleteOpportunity(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, model.OpportunityCompleted, opp.Status)

	cand, err := h.mem.Profiles().Get(context.Background(), "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.57, *cand.Reputation, 1e-9)
}

func TestCloseOpportunityExpiresOpenOffers(t *testing.T) {
	h := newHarness(t)
	dispatched(t, h, model.Opportunity{ID: "m1", AllowMultipleQuotes: true}, "a", "b", "c")
	_, err := h.d.RespondToOffer(context.Background(), key("m1", "a"), ActionAccept, nil)
	require.NoError(t, err)
	_, err = h.d.RespondToOffer(context.Background(), key("m1", "b"), ActionRefuse, nil)
	require.NoError(t, err)

	opp, err := h.d.CloseOpportunity(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, model.OpportunityExpired, opp.Status)
	assert.Equal(t, map[string]model.OfferStatus{
		"a": model.OfferExpired, "b": model.OfferRefused, "c": model.OfferExpired,
	}, h.statuses(t, "m1"))

	_, err = h.d.CloseOpportunity(context.Background(), "m1")
	assert.ErrorIs(t, err, ErrOpportunityClosed)
	_, err = h.d.RespondToOffer(context.Background(), key("m1", "c"), ActionAccept, nil)
	assert.ErrorIs(t, err, ErrOfferNotPending)
}
