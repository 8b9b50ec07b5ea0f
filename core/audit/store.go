// Package audit keeps the append-only log of dispatch decisions. Every
// created offer gets one record with the score snapshot and the fairness
// context (group, quota target, quota used) that justified it.
package audit

import (
	"context"
	"time"

	"github.com/kilianp07/wavematch/core/model"
)

// Query defines filters for retrieving records. Zero values match everything.
type Query struct {
	Start         time.Time
	End           time.Time
	Group         string
	OpportunityID string
	CandidateID   string
}

// Match reports whether rec passes the filters.
func (q Query) Match(rec model.DecisionAudit) bool {
	if !q.Start.IsZero() && rec.RecordedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && rec.RecordedAt.After(q.End) {
		return false
	}
	if q.Group != "" && rec.Group != q.Group {
		return false
	}
	if q.OpportunityID != "" && rec.OpportunityID != q.OpportunityID {
		return false
	}
	if q.CandidateID != "" && rec.CandidateID != q.CandidateID {
		return false
	}
	return true
}

// Store persists decision records and supports querying by time range.
type Store interface {
	Append(ctx context.Context, rec model.DecisionAudit) error
	Query(ctx context.Context, q Query) ([]model.DecisionAudit, error)
	Close() error
}
