package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/wavematch/core/model"
)

func sampleRecords(base time.Time) []model.DecisionAudit {
	return []model.DecisionAudit{
		{ID: "a1", OfferID: "o1", OpportunityID: "m1", CandidateID: "c1", Wave: 1, Group: "FR", RecordedAt: base},
		{ID: "a2", OfferID: "o2", OpportunityID: "m1", CandidateID: "c2", Wave: 1, Group: "DE", RecordedAt: base.Add(time.Hour)},
		{ID: "a3", OfferID: "o3", OpportunityID: "m2", CandidateID: "c1", Wave: 2, Group: "FR", RecordedAt: base.Add(48 * time.Hour)},
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, r := range sampleRecords(base) {
		require.NoError(t, s.Append(ctx, r))
	}

	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a1", all[0].ID)

	fr, err := s.Query(ctx, Query{Group: "FR"})
	require.NoError(t, err)
	assert.Len(t, fr, 2)

	window, err := s.Query(ctx, Query{Start: base.Add(30 * time.Minute), End: base.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "a2", window[0].ID)

	byOpp, err := s.Query(ctx, Query{OpportunityID: "m2", CandidateID: "c1"})
	require.NoError(t, err)
	require.Len(t, byOpp, 1)
	assert.Equal(t, 2, byOpp[0].Wave)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestJSONLStore(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestRotatingJSONLStore(t *testing.T) {
	s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "logs", "audit.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 3, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	rec := model.DecisionAudit{ID: "x", Group: "FR", RecordedAt: time.Now(), OpportunityID: strings.Repeat("x", 2048)}
	for i := 0; i < 700; i++ {
		if err := s.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	files, _ := filepath.Glob(filepath.Join(dir, "audit*.jsonl"))
	if len(files) < 2 {
		t.Fatalf("expected rotated files, got %v", files)
	}
	out, err := s.Query(context.Background(), Query{Group: "FR"})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)

	dup := sampleRecords(time.Now())[0]
	if err := s.Append(context.Background(), dup); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		cfg  Config
		want any
	}{
		{Config{Backend: "memory"}, &MemoryStore{}},
		{Config{Backend: "jsonl", Path: filepath.Join(dir, "a.jsonl")}, &JSONLStore{}},
		{Config{Backend: "jsonl", Path: filepath.Join(dir, "b.jsonl"), MaxSizeMB: 5}, &RotatingJSONLStore{}},
		{Config{Backend: "sqlite", Path: filepath.Join(dir, "c.db")}, &SQLiteStore{}},
	}
	for _, tc := range cases {
		s, err := Open(tc.cfg)
		require.NoError(t, err, tc.cfg.Backend)
		assert.IsType(t, tc.want, s)
		_ = s.Close()
	}

	_, err := Open(Config{Backend: "kafka"})
	assert.Error(t, err)
	assert.Error(t, Config{Backend: "jsonl", Path: "x", MaxBackups: -1}.Validate())
}
