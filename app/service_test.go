package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/wavematch/config"
	"github.com/kilianp07/wavematch/core/audit"
	"github.com/kilianp07/wavematch/core/dispatch"
	"github.com/kilianp07/wavematch/core/model"
	"github.com/kilianp07/wavematch/core/store"
)

const seedYAML = `candidates:
  - id: alice
    region: FR
    skills: [go, sql]
    reputation: 0.8
  - id: bob
    region: DE
    skills: [go]
opportunities:
  - id: m1
    title: Migrate the billing database
    required_skills: [go, sql]
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(seed, []byte(seedYAML), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	cfg := &config.Config{
		Audit: audit.Config{Backend: "memory"},
		Store: config.StoreConfig{Backend: "memory", Seed: seed},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestServiceDispatchesSeededOpportunity(t *testing.T) {
	dispatch.ResetMetrics(nil)
	t.Cleanup(func() { dispatch.ResetMetrics(nil) })
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	svc, err := New(context.Background(), testConfig(t), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))

	res, err := svc.Dispatcher.DispatchWave(ctx, "m1", dispatch.WaveParams{WaveSize: 1})
	require.NoError(t, err)
	require.Len(t, res.Offers, 1)
	assert.Equal(t, "alice", res.Offers[0].CandidateID)

	recs, err := svc.Audit().Query(ctx, audit.Query{OpportunityID: "m1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, now, recs[0].RecordedAt)

	_, err = svc.Dispatcher.RespondToOffer(ctx, res.Offers[0].Key(), dispatch.ActionAccept, nil)
	require.NoError(t, err)
	cancel()
	require.NoError(t, svc.Close())
}

func TestServiceUsesInjectedBackend(t *testing.T) {
	mem := store.NewMemory()
	cfg := testConfig(t)
	cfg.Store.Seed = ""
	require.NoError(t, mem.Profiles().Upsert(context.Background(), model.CandidateProfile{ID: "x", Region: "FR"}))

	svc, err := New(context.Background(), cfg, WithBackend(mem))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	_, err = svc.Dispatcher.CreateOpportunity(context.Background(), model.Opportunity{ID: "m2", Title: "Audit logs"})
	require.NoError(t, err)
	got, err := mem.Opportunities().Get(context.Background(), "m2")
	require.NoError(t, err)
	assert.Equal(t, model.OpportunityOpen, got.Status)
}

func TestServiceRejectsUnknownSink(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notify.Sinks[0].Type = "pager"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	dispatch.ResetMetrics(nil)
	t.Cleanup(func() { dispatch.ResetMetrics(nil) })
	svc, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
