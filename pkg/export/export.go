// Package export writes decision audit records for offline fairness review.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/wavematch/core/model"
)

// WriteJSON writes the records to w as a JSON array.
func WriteJSON(w io.Writer, recs []model.DecisionAudit) error {
	if recs == nil {
		recs = []model.DecisionAudit{}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(recs)
}

var csvHeader = []string{
	"recorded_at", "opportunity_id", "candidate_id", "offer_id", "wave", "group",
	"quota_target", "quota_used", "match", "skill", "reputation", "recency", "workload_pen",
}

// WriteCSV writes one row per record with a header line.
func WriteCSV(w io.Writer, recs []model.DecisionAudit) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, r := range recs {
		rec := []string{
			r.RecordedAt.UTC().Format(time.RFC3339),
			r.OpportunityID,
			r.CandidateID,
			r.OfferID,
			strconv.Itoa(r.Wave),
			r.Group,
			strconv.Itoa(r.QuotaTarget),
			strconv.Itoa(r.QuotaUsed),
			f(r.Score.Match), f(r.Score.Skill), f(r.Score.Reputation), f(r.Score.Recency), f(r.Score.WorkloadPen),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on format: "json" or "csv".
func Write(w io.Writer, format string, recs []model.DecisionAudit) error {
	switch format {
	case "json":
		return WriteJSON(w, recs)
	case "csv":
		return WriteCSV(w, recs)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
