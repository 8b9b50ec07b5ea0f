package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/wavematch/core/logger"
	"github.com/kilianp07/wavematch/core/model"
	"github.com/kilianp07/wavematch/core/store"
)

// Action is a candidate answer to an offer.
type Action string

const (
	ActionAccept Action = "accept"
	ActionRefuse Action = "refuse"
)

// ParseAction accepts the wire spellings of an action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionAccept, ActionRefuse:
		return Action(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// RespondToOffer records a candidate answer. Only pending offers inside their
// deadline can be answered; anything else fails with ErrOfferNotPending and
// changes nothing.
//
// An accept on a single-offer opportunity expires every other pending offer
// and moves the opportunity to accepted. On a multiple-quotes opportunity this
// only happens once AcceptanceQuota offers were accepted.
func (d *Dispatcher) RespondToOffer(ctx context.Context, key model.OfferKey, action Action, comment *string) (model.Offer, error) {
	if action != ActionAccept && action != ActionRefuse {
		return model.Offer{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	unlock, err := d.locks.Lock(ctx, key.OpportunityID)
	if err != nil {
		return model.Offer{}, fmt.Errorf("respond %s: waiting for lock: %w", key, err)
	}
	defer unlock()

	offer, err := d.offers.Get(ctx, key)
	if err != nil {
		return model.Offer{}, fmt.Errorf("respond %s: %w", key, err)
	}
	now := d.now()
	if offer.Status != model.OfferPending || !now.Before(offer.ExpiresAt) {
		d.log.Warnf("respond %s %s: offer is %s (expires %s)", key, action, offer.Status, offer.ExpiresAt.Format(time.RFC3339))
		return offer, fmt.Errorf("respond %s: %w", key, ErrOfferNotPending)
	}
	opp, err := d.opps.Get(ctx, key.OpportunityID)
	if err != nil {
		return model.Offer{}, fmt.Errorf("respond %s: %w", key, err)
	}
	if !opp.Status.Dispatchable() {
		d.log.Warnf("respond %s: opportunity is %s", key, opp.Status)
		return offer, fmt.Errorf("respond %s: %w", key, ErrOpportunityClosed)
	}

	to := model.OfferRefused
	if action == ActionAccept {
		to = model.OfferAccepted
	}
	next, err := offer.Transition(to)
	if err != nil {
		return offer, err
	}
	next.RespondedAt = &now
	if comment != nil {
		c := *comment
		next.Comment = &c
	}
	self := store.OfferUpdate{Next: next, ExpectStatus: model.OfferPending}
	t := store.Transition{Offers: []store.OfferUpdate{self}}

	var closing []store.OfferUpdate
	if action == ActionAccept {
		others, err := d.offers.ListByOpportunity(ctx, opp.ID)
		if err != nil {
			return model.Offer{}, fmt.Errorf("respond %s: %w", key, err)
		}
		accepted := 1
		for _, o := range others {
			if o.CandidateID != key.CandidateID && o.Status == model.OfferAccepted {
				accepted++
			}
		}
		if !opp.AllowMultipleQuotes || accepted >= d.cfg.AcceptanceQuota {
			closing = expireOthers(others, key, model.OfferPending)
			nextOpp := opp.Clone()
			nextOpp.Status = model.OpportunityAccepted
			if !opp.AllowMultipleQuotes {
				k := key
				nextOpp.SelectedOffer = &k
			}
			t.Opportunity = &store.OpportunityUpdate{Next: nextOpp, ExpectStatus: opp.Status, ExpectVersion: opp.Version}
			t.Offers = append(t.Offers, closing...)
		}
	}

	if err := d.offers.Apply(ctx, t); err != nil {
		if errors.Is(err, store.ErrConflict) {
			if cur, gerr := d.offers.Get(ctx, key); gerr == nil && cur.Status != model.OfferPending {
				d.log.Warnf("respond %s: lost race, offer is now %s", key, cur.Status)
				return cur, fmt.Errorf("respond %s: %w", key, ErrOfferNotPending)
			}
		}
		d.log.Errorf("respond %s: %v", key, err)
		return offer, fmt.Errorf("respond %s: %w", key, err)
	}

	d.transitioned("response", now, self)
	d.transitioned("quota", now, closing...)
	if action == ActionAccept {
		d.nudge(ctx, key.CandidateID, d.cfg.Reputation.AcceptDelta(), "accept")
	} else {
		d.nudge(ctx, key.CandidateID, d.cfg.Reputation.RefuseDelta(), "refuse")
	}
	fields := logger.Fields{
		"opportunity_id": key.OpportunityID,
		"candidate_id":   key.CandidateID,
		"action":         string(action),
		"expired_others": len(closing),
	}
	if t.Opportunity != nil {
		fields["opportunity_status"] = string(t.Opportunity.Next.Status)
	}
	d.log.Infow("offer answered", fields)
	return next, nil
}

// ConfirmSelection confirms the accepted offer of candidateID, expires every
// other open offer and moves the opportunity to confirmed.
func (d *Dispatcher) ConfirmSelection(ctx context.Context, oppID, candidateID string) (model.Opportunity, error) {
	key := model.OfferKey{OpportunityID: oppID, CandidateID: candidateID}
	unlock, err := d.locks.Lock(ctx, oppID)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("%s: waiting for lock: %w", oppID, err)
	}
	defer unlock()

	opp, err := d.opps.Get(ctx, oppID)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("confirm %s: %w", key, err)
	}
	offer, err := d.offers.Get(ctx, key)
	if err != nil {
		return opp, fmt.Errorf("confirm %s: %w", key, err)
	}
	if offer.Status != model.OfferAccepted {
		d.log.Warnf("confirm %s: offer is %s", key, offer.Status)
		return opp, fmt.Errorf("confirm %s: %w", key, ErrOfferNotAcceptable)
	}
	if opp.Status != model.OpportunityMatching && opp.Status != model.OpportunityAccepted {
		d.log.Warnf("confirm %s: opportunity is %s", key, opp.Status)
		return opp, fmt.Errorf("confirm %s: %w", key, ErrOpportunityClosed)
	}

	now := d.now()
	confirmed, err := offer.Transition(model.OfferConfirmed)
	if err != nil {
		return opp, err
	}
	self := store.OfferUpdate{Next: confirmed, ExpectStatus: model.OfferAccepted}
	others, err := d.offers.ListByOpportunity(ctx, oppID)
	if err != nil {
		return opp, fmt.Errorf("confirm %s: %w", key, err)
	}
	closing := expireOthers(others, key, model.OfferPending, model.OfferAccepted)
	next := opp.Clone()
	next.Status = model.OpportunityConfirmed
	next.SelectedOffer = &key
	err = d.offers.Apply(ctx, store.Transition{
		Opportunity: &store.OpportunityUpdate{Next: next, ExpectStatus: opp.Status, ExpectVersion: opp.Version},
		Offers:      append([]store.OfferUpdate{self}, closing...),
	})
	if err != nil {
		d.log.Errorf("confirm %s: %v", key, err)
		return opp, fmt.Errorf("confirm %s: %w", key, err)
	}
	next.Version = opp.Version + 1

	d.transitioned("confirm", now, self)
	d.transitioned("confirm", now, closing...)
	d.log.Infow("selection confirmed", logger.Fields{
		"opportunity_id": oppID,
		"candidate_id":   candidateID,
		"expired_others": len(closing),
	})
	return next, nil
}

// CompleteOpportunity marks a confirmed opportunity as completed and rewards
// the selected candidate.
func (d *Dispatcher) CompleteOpportunity(ctx context.Context, oppID string) (model.Opportunity, error) {
	unlock, err := d.locks.Lock(ctx, oppID)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("%s: waiting for lock: %w", oppID, err)
	}
	defer unlock()

	opp, err := d.opps.Get(ctx, oppID)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("complete %s: %w", oppID, err)
	}
	if opp.Status != model.OpportunityConfirmed || opp.SelectedOffer == nil {
		d.log.Warnf("complete %s: opportunity is %s", oppID, opp.Status)
		return opp, fmt.Errorf("complete %s: %w", oppID, ErrOpportunityNotConfirmed)
	}
	next := opp.Clone()
	next.Status = model.OpportunityCompleted
	err = d.offers.Apply(ctx, store.Transition{
		Opportunity: &store.OpportunityUpdate{Next: next, ExpectStatus: opp.Status, ExpectVersion: opp.Version},
	})
	if err != nil {
		d.log.Errorf("complete %s: %v", oppID, err)
		return opp, fmt.Errorf("complete %s: %w", oppID, err)
	}
	next.Version = opp.Version + 1
	d.nudge(ctx, opp.SelectedOffer.CandidateID, d.cfg.Reputation.CompleteDelta(), "complete")
	d.log.Infof("opportunity %s completed by %s", oppID, opp.SelectedOffer.CandidateID)
	return next, nil
}

// CloseOpportunity is the requester withdrawing an opportunity: every open
// offer expires and the opportunity moves to expired. Confirmed, completed
// and already expired opportunities cannot be closed.
func (d *Dispatcher) CloseOpportunity(ctx context.Context, oppID string) (model.Opportunity, error) {
	unlock, err := d.locks.Lock(ctx, oppID)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("%s: waiting for lock: %w", oppID, err)
	}
	defer unlock()

	opp, err := d.opps.Get(ctx, oppID)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("close %s: %w", oppID, err)
	}
	switch opp.Status {
	case model.OpportunityOpen, model.OpportunityMatching, model.OpportunityAccepted:
	default:
		d.log.Warnf("close %s: opportunity is %s", oppID, opp.Status)
		return opp, fmt.Errorf("close %s: %w", oppID, ErrOpportunityClosed)
	}
	offers, err := d.offers.ListByOpportunity(ctx, oppID)
	if err != nil {
		return opp, fmt.Errorf("close %s: %w", oppID, err)
	}
	now := d.now()
	closing := expireOthers(offers, model.OfferKey{}, model.OfferPending, model.OfferAccepted)
	next := opp.Clone()
	next.Status = model.OpportunityExpired
	err = d.offers.Apply(ctx, store.Transition{
		Opportunity: &store.OpportunityUpdate{Next: next, ExpectStatus: opp.Status, ExpectVersion: opp.Version},
		Offers:      closing,
	})
	if err != nil {
		d.log.Errorf("close %s: %v", oppID, err)
		return opp, fmt.Errorf("close %s: %w", oppID, err)
	}
	next.Version = opp.Version + 1
	d.transitioned("close", now, closing...)
	d.log.Infof("opportunity %s closed, %d offers expired", oppID, len(closing))
	return next, nil
}

// expireOthers builds expiry updates for every offer except keep whose status
// is one of from.
func expireOthers(offers []model.Offer, keep model.OfferKey, from ...model.OfferStatus) []store.OfferUpdate {
	var out []store.OfferUpdate
	for _, o := range offers {
		if o.Key() == keep {
			continue
		}
		for _, s := range from {
			if o.Status != s {
				continue
			}
			next, err := o.Transition(model.OfferExpired)
			if err != nil {
				break
			}
			out = append(out, store.OfferUpdate{Next: next, ExpectStatus: s})
			break
		}
	}
	return out
}
