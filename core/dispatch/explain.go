package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/wavematch/core/fairness"
	"github.com/kilianp07/wavematch/core/model"
	"github.com/kilianp07/wavematch/core/store"
)

// ScoreExplanation is the debug view of one (opportunity, candidate) pair.
type ScoreExplanation struct {
	OpportunityID string              `json:"opportunity_id"`
	CandidateID   string              `json:"candidate_id"`
	Group         string              `json:"group"`
	Current       model.ScoreSnapshot `json:"current"`
	// Rank is the 1-based position among the eligible pool.
	Rank     int  `json:"rank"`
	PoolSize int  `json:"pool_size"`
	Eligible bool `json:"eligible"`
	// Offer is set when the candidate already received an offer; its score
	// is the snapshot frozen at dispatch time.
	Offer *model.Offer `json:"offer,omitempty"`
}

// GetScore scores a candidate against an opportunity using the current
// eligible pool for recency scaling. It changes nothing.
func (d *Dispatcher) GetScore(ctx context.Context, oppID, candidateID string) (ScoreExplanation, error) {
	opp, err := d.opps.Get(ctx, oppID)
	if err != nil {
		return ScoreExplanation{}, fmt.Errorf("score %s/%s: %w", oppID, candidateID, err)
	}
	cand, err := d.profiles.Get(ctx, candidateID)
	if err != nil {
		return ScoreExplanation{}, fmt.Errorf("score %s/%s: %w", oppID, candidateID, err)
	}
	pool, err := d.profiles.ListCandidates(ctx, store.CandidateFilter{Region: opp.RegionFilter()})
	if err != nil {
		return ScoreExplanation{}, fmt.Errorf("score %s/%s: %w", oppID, candidateID, err)
	}
	existing, err := d.offers.ListByOpportunity(ctx, oppID)
	if err != nil {
		return ScoreExplanation{}, fmt.Errorf("score %s/%s: %w", oppID, candidateID, err)
	}

	out := ScoreExplanation{OpportunityID: oppID, CandidateID: candidateID, Group: cand.Group()}
	for _, o := range existing {
		if o.CandidateID == candidateID {
			out.Offer = &o
		}
	}
	eligible := excludeNotified(pool, existing)
	inPool := false
	for _, c := range eligible {
		if c.ID == candidateID {
			inPool = true
			break
		}
	}
	out.Eligible = inPool
	if !inPool {
		eligible = append(eligible, cand)
	}
	ids := make([]string, len(eligible))
	for i, c := range eligible {
		ids[i] = c.ID
	}
	open, err := d.offers.OpenCounts(ctx, ids)
	if err != nil {
		return ScoreExplanation{}, fmt.Errorf("score %s/%s: %w", oppID, candidateID, err)
	}
	ranked := d.engine.Rank(opp, eligible, open)
	out.PoolSize = len(ranked)
	for i, r := range ranked {
		if r.Candidate.ID == candidateID {
			out.Rank = i + 1
			out.Current = r.Score
			break
		}
	}
	return out, nil
}

// ComputeFairnessStats reports per-group targets for the currently open
// opportunities against the audited usage since periodStart.
func (d *Dispatcher) ComputeFairnessStats(ctx context.Context, periodStart time.Time) ([]fairness.GroupStats, error) {
	if periodStart.After(d.now()) {
		return nil, errors.New("fairness stats: period start is in the future")
	}
	pool, err := d.profiles.ListCandidates(ctx, store.CandidateFilter{})
	if err != nil {
		return nil, fmt.Errorf("fairness stats: %w", err)
	}
	open, err := d.opps.List(ctx, model.OpportunityOpen, model.OpportunityMatching)
	if err != nil {
		return nil, fmt.Errorf("fairness stats: %w", err)
	}
	stats, err := d.alloc.Stats(ctx, periodStart, groupCounts(pool), len(open))
	if err != nil {
		return nil, fmt.Errorf("fairness stats: %w", err)
	}
	return stats, nil
}
