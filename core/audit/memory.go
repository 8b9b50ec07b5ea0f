package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/kilianp07/wavematch/core/model"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []model.DecisionAudit
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(ctx context.Context, rec model.DecisionAudit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, q Query) ([]model.DecisionAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.DecisionAudit
	for _, r := range s.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].RecordedAt.Before(res[j].RecordedAt) })
	return res, nil
}

func (s *MemoryStore) Close() error { return nil }
