package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/kilianp07/wavematch/core/logger"
	"github.com/kilianp07/wavematch/core/model"
	"github.com/kilianp07/wavematch/core/monitoring"
)

// ErrWriteFailed is returned when a decision could not be persisted.
var ErrWriteFailed = errors.New("audit write failed")

// Auditor records one decision per created offer.
type Auditor struct {
	store Store
	log   logger.Logger
}

func NewAuditor(store Store, log logger.Logger) *Auditor {
	return &Auditor{store: store, log: log}
}

// Store returns the backing store.
func (a *Auditor) Store() Store { return a.store }

// Record appends the decision behind offer. A failure is logged and reported
// to the error monitor before being returned wrapped in ErrWriteFailed; the
// caller decides whether to continue.
func (a *Auditor) Record(ctx context.Context, offer model.Offer, snap model.ScoreSnapshot, group string, quotaTarget, quotaUsed int) (model.DecisionAudit, error) {
	rec := model.DecisionAudit{
		ID:            uuid.NewString(),
		OfferID:       offer.ID,
		OpportunityID: offer.OpportunityID,
		CandidateID:   offer.CandidateID,
		Wave:          offer.Wave,
		Score:         snap,
		Group:         group,
		QuotaTarget:   quotaTarget,
		QuotaUsed:     quotaUsed,
		RecordedAt:    offer.DispatchedAt,
	}
	if err := a.store.Append(ctx, rec); err != nil {
		a.log.Errorf("audit %s for %s: %v", rec.ID, offer.Key(), err)
		monitoring.CaptureException(err, map[string]string{
			"component":      "audit",
			"opportunity_id": offer.OpportunityID,
			"candidate_id":   offer.CandidateID,
			"wave":           strconv.Itoa(offer.Wave),
		})
		return rec, fmt.Errorf("%w: %s: %v", ErrWriteFailed, offer.Key(), err)
	}
	a.log.Infow("offer decision", logger.Fields{
		"audit_id":       rec.ID,
		"offer_id":       rec.OfferID,
		"opportunity_id": rec.OpportunityID,
		"candidate_id":   rec.CandidateID,
		"wave":           rec.Wave,
		"match":          snap.Match,
		"group":          group,
		"quota_target":   quotaTarget,
		"quota_used":     quotaUsed,
	})
	return rec, nil
}
