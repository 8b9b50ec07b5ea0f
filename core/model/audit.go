package model

import "time"

// DecisionAudit captures why an offer was created. Records are write-once.
type DecisionAudit struct {
	ID            string        `json:"id"`
	OfferID       string        `json:"offer_id"`
	OpportunityID string        `json:"opportunity_id"`
	CandidateID   string        `json:"candidate_id"`
	Wave          int           `json:"wave"`
	Score         ScoreSnapshot `json:"score"`
	Group         string        `json:"group"`
	QuotaTarget   int           `json:"quota_target"`
	QuotaUsed     int           `json:"quota_used"`
	RecordedAt    time.Time     `json:"recorded_at"`
}
