// Package audit exposes the decision log, fairness statistics and score
// explanations over read-only HTTP endpoints.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	coreaudit "github.com/kilianp07/wavematch/core/audit"
	"github.com/kilianp07/wavematch/core/dispatch"
	"github.com/kilianp07/wavematch/core/fairness"
	"github.com/kilianp07/wavematch/core/model"
	"github.com/kilianp07/wavematch/core/store"
)

// Explainer is implemented by *dispatch.Dispatcher.
type Explainer interface {
	GetScore(ctx context.Context, oppID, candidateID string) (dispatch.ScoreExplanation, error)
	ComputeFairnessStats(ctx context.Context, periodStart time.Time) ([]fairness.GroupStats, error)
}

// NewMux routes every endpoint. Requests must carry "Bearer <token>" when
// token is non-empty.
func NewMux(records coreaudit.Store, ex Explainer, window time.Duration, token string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/audit", NewLogHandler(records, token))
	mux.Handle("/api/fairness", NewFairnessHandler(ex, window, token))
	mux.Handle("/api/score", NewScoreHandler(ex, token))
	return mux
}

func authorize(w http.ResponseWriter, r *http.Request, token string) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func parseTime(r *http.Request, key string) (time.Time, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrStoreUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// NewLogHandler serves GET /api/audit filtered by start, end, group,
// opportunity_id and candidate_id.
func NewLogHandler(records coreaudit.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorize(w, r, token) {
			return
		}
		start, err := parseTime(r, "start")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		end, err := parseTime(r, "end")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q := coreaudit.Query{
			Start:         start,
			End:           end,
			Group:         r.URL.Query().Get("group"),
			OpportunityID: r.URL.Query().Get("opportunity_id"),
			CandidateID:   r.URL.Query().Get("candidate_id"),
		}
		recs, err := records.Query(r.Context(), q)
		if err != nil {
			writeError(w, err)
			return
		}
		if recs == nil {
			recs = []model.DecisionAudit{}
		}
		writeJSON(w, recs)
	})
}

// NewFairnessHandler serves GET /api/fairness?since=RFC3339. Without since
// the last window is reported.
func NewFairnessHandler(ex Explainer, window time.Duration, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorize(w, r, token) {
			return
		}
		since, err := parseTime(r, "since")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if since.IsZero() {
			since = time.Now().Add(-window)
		}
		if since.After(time.Now()) {
			http.Error(w, "since is in the future", http.StatusBadRequest)
			return
		}
		stats, err := ex.ComputeFairnessStats(r.Context(), since)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, stats)
	})
}

// NewScoreHandler serves GET /api/score?opportunity_id&candidate_id.
func NewScoreHandler(ex Explainer, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorize(w, r, token) {
			return
		}
		opp, cand := r.URL.Query().Get("opportunity_id"), r.URL.Query().Get("candidate_id")
		if opp == "" || cand == "" {
			http.Error(w, "opportunity_id and candidate_id are required", http.StatusBadRequest)
			return
		}
		exp, err := ex.GetScore(r.Context(), opp, cand)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, exp)
	})
}
