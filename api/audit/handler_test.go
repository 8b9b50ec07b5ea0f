package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreaudit "github.com/kilianp07/wavematch/core/audit"
	"github.com/kilianp07/wavematch/core/dispatch"
	"github.com/kilianp07/wavematch/core/fairness"
	"github.com/kilianp07/wavematch/core/model"
	"github.com/kilianp07/wavematch/core/store"
)

type fakeExplainer struct {
	since time.Time
	err   error
}

func (f *fakeExplainer) GetScore(_ context.Context, oppID, candID string) (dispatch.ScoreExplanation, error) {
	if f.err != nil {
		return dispatch.ScoreExplanation{}, f.err
	}
	return dispatch.ScoreExplanation{OpportunityID: oppID, CandidateID: candID, Rank: 2, PoolSize: 5, Eligible: true}, nil
}

func (f *fakeExplainer) ComputeFairnessStats(_ context.Context, since time.Time) ([]fairness.GroupStats, error) {
	f.since = since
	return []fairness.GroupStats{{Group: "FR", Candidates: 2, Target: 3, Used: 1}}, f.err
}

func get(t *testing.T, h http.Handler, url, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLogHandler_AuthAndFilters(t *testing.T) {
	records := coreaudit.NewMemoryStore()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	for i, g := range []string{"FR", "DE", "FR"} {
		require.NoError(t, records.Append(context.Background(), model.DecisionAudit{
			ID: fmt.Sprint(i), OpportunityID: "m1", CandidateID: fmt.Sprint("c", i), Group: g,
			RecordedAt: at.Add(time.Duration(i) * time.Hour),
		}))
	}
	mux := NewMux(records, &fakeExplainer{}, time.Hour, "tok")

	rr := get(t, mux, "/api/audit?group=FR&start=2025-03-10T09:30:00Z", "tok")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []model.DecisionAudit
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	require.Len(t, out, 1)
	assert.Equal(t, "c2", out[0].CandidateID)

	rr = get(t, mux, "/api/audit?opportunity_id=none", "tok")
	assert.Equal(t, "[]\n", rr.Body.String())

	if rr := get(t, mux, "/api/audit", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
	assert.Equal(t, http.StatusBadRequest, get(t, mux, "/api/audit?start=yesterday", "tok").Code)

	req := httptest.NewRequest(http.MethodPost, "/api/audit", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestFairnessHandler(t *testing.T) {
	ex := &fakeExplainer{}
	h := NewFairnessHandler(ex, 24*time.Hour, "")

	rr := get(t, h, "/api/fairness?since=2025-03-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), ex.since)
	var stats []fairness.GroupStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, "FR", stats[0].Group)

	rr = get(t, h, "/api/fairness", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), ex.since, time.Minute)

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/fairness?since="+future, "").Code)
}

func TestScoreHandler(t *testing.T) {
	ex := &fakeExplainer{}
	h := NewScoreHandler(ex, "")

	rr := get(t, h, "/api/score?opportunity_id=m1&candidate_id=c1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var exp dispatch.ScoreExplanation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &exp))
	assert.Equal(t, 2, exp.Rank)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/score?opportunity_id=m1", "").Code)

	ex.err = fmt.Errorf("score: %w", store.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/score?opportunity_id=m1&candidate_id=zz", "").Code)
	ex.err = fmt.Errorf("score: %w", store.ErrStoreUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/score?opportunity_id=m1&candidate_id=zz", "").Code)
}
