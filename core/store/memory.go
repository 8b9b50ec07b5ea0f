package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/wavematch/core/model"
)

// Memory keeps every record in process memory behind one lock so that
// transitions are atomic. Records are deep-copied in and out.
type Memory struct {
	mu            sync.RWMutex
	profiles      map[string]model.CandidateProfile
	opportunities map[string]model.Opportunity
	offers        map[model.OfferKey]model.Offer
	byOpportunity map[string][]model.OfferKey
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		profiles:      make(map[string]model.CandidateProfile),
		opportunities: make(map[string]model.Opportunity),
		offers:        make(map[model.OfferKey]model.Offer),
		byOpportunity: make(map[string][]model.OfferKey),
	}
}

func (m *Memory) Profiles() ProfileStore         { return memoryProfiles{m} }
func (m *Memory) Opportunities() OpportunityStore { return memoryOpportunities{m} }
func (m *Memory) Offers() OfferStore              { return memoryOffers{m} }
func (m *Memory) Close() error                    { return nil }

type memoryProfiles struct{ m *Memory }

func (s memoryProfiles) ListCandidates(ctx context.Context, f CandidateFilter) ([]model.CandidateProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var ids map[string]struct{}
	if len(f.IDs) > 0 {
		ids = make(map[string]struct{}, len(f.IDs))
		for _, id := range f.IDs {
			ids[id] = struct{}{}
		}
	}
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]model.CandidateProfile, 0, len(s.m.profiles))
	for id, p := range s.m.profiles {
		if f.Region != "" && !strings.EqualFold(p.Region, f.Region) {
			continue
		}
		if ids != nil {
			if _, ok := ids[id]; !ok {
				continue
			}
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memoryProfiles) Get(ctx context.Context, id string) (model.CandidateProfile, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	p, ok := s.m.profiles[id]
	if !ok {
		return model.CandidateProfile{}, fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

func (s memoryProfiles) UpdateReputation(ctx context.Context, id string, delta float64) (float64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	p, ok := s.m.profiles[id]
	if !ok {
		return 0, fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	v := model.ClampReputation(p.ReputationOr(model.DefaultReputation) + delta)
	p.Reputation = &v
	s.m.profiles[id] = p
	return v, nil
}

func (s memoryProfiles) Upsert(ctx context.Context, c model.CandidateProfile) error {
	if c.ID == "" {
		return fmt.Errorf("candidate id is required")
	}
	s.m.mu.Lock()
	s.m.profiles[c.ID] = c.Clone()
	s.m.mu.Unlock()
	return nil
}

type memoryOpportunities struct{ m *Memory }

func (s memoryOpportunities) Get(ctx context.Context, id string) (model.Opportunity, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	o, ok := s.m.opportunities[id]
	if !ok {
		return model.Opportunity{}, fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
	}
	return o.Clone(), nil
}

func (s memoryOpportunities) Create(ctx context.Context, o model.Opportunity) error {
	if err := o.Validate(); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.opportunities[o.ID]; ok {
		return fmt.Errorf("opportunity %s: %w", o.ID, ErrDuplicateKey)
	}
	o.Version = 1
	s.m.opportunities[o.ID] = o.Clone()
	return nil
}

func (s memoryOpportunities) Update(ctx context.Context, o model.Opportunity) (model.Opportunity, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cur, ok := s.m.opportunities[o.ID]
	if !ok {
		return model.Opportunity{}, fmt.Errorf("opportunity %s: %w", o.ID, ErrNotFound)
	}
	if cur.Version != o.Version {
		return model.Opportunity{}, fmt.Errorf("opportunity %s version %d (stored %d): %w", o.ID, o.Version, cur.Version, ErrConflict)
	}
	o.Version++
	s.m.opportunities[o.ID] = o.Clone()
	return o.Clone(), nil
}

func (s memoryOpportunities) List(ctx context.Context, statuses ...model.OpportunityStatus) ([]model.Opportunity, error) {
	want := make(map[model.OpportunityStatus]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []model.Opportunity
	for _, o := range s.m.opportunities {
		if len(want) > 0 {
			if _, ok := want[o.Status]; !ok {
				continue
			}
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type memoryOffers struct{ m *Memory }

func (s memoryOffers) Create(ctx context.Context, offers []model.Offer) error {
	return s.Apply(ctx, Transition{Create: offers})
}

func (s memoryOffers) Get(ctx context.Context, key model.OfferKey) (model.Offer, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	o, ok := s.m.offers[key]
	if !ok {
		return model.Offer{}, fmt.Errorf("offer %s: %w", key, ErrNotFound)
	}
	return o.Clone(), nil
}

func (s memoryOffers) ListByOpportunity(ctx context.Context, opportunityID string) ([]model.Offer, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	keys := s.m.byOpportunity[opportunityID]
	out := make([]model.Offer, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.m.offers[k].Clone())
	}
	return out, nil
}

func (s memoryOffers) ListDue(ctx context.Context, now time.Time) ([]model.Offer, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []model.Offer
	for _, o := range s.m.offers {
		if o.Due(now) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].Key().String() < out[j].Key().String()
	})
	return out, nil
}

func (s memoryOffers) OpenCounts(ctx context.Context, candidateIDs []string) (map[string]int, error) {
	want := make(map[string]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		want[id] = struct{}{}
	}
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make(map[string]int, len(candidateIDs))
	for _, o := range s.m.offers {
		if !o.Status.Open() {
			continue
		}
		if _, ok := want[o.CandidateID]; ok {
			out[o.CandidateID]++
		}
	}
	return out, nil
}

// Apply checks every guard before writing anything.
func (s memoryOffers) Apply(ctx context.Context, t Transition) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if u := t.Opportunity; u != nil {
		cur, ok := s.m.opportunities[u.Next.ID]
		if !ok {
			return fmt.Errorf("opportunity %s: %w", u.Next.ID, ErrNotFound)
		}
		if cur.Status != u.ExpectStatus || cur.Version != u.ExpectVersion {
			return fmt.Errorf("opportunity %s is %s@%d, expected %s@%d: %w",
				cur.ID, cur.Status, cur.Version, u.ExpectStatus, u.ExpectVersion, ErrConflict)
		}
	}
	seen := make(map[model.OfferKey]struct{}, len(t.Create))
	for _, o := range t.Create {
		k := o.Key()
		if _, ok := s.m.offers[k]; ok {
			return fmt.Errorf("offer %s: %w", k, ErrDuplicateKey)
		}
		if _, ok := seen[k]; ok {
			return fmt.Errorf("offer %s: %w", k, ErrDuplicateKey)
		}
		seen[k] = struct{}{}
	}
	for _, u := range t.Offers {
		k := u.Next.Key()
		cur, ok := s.m.offers[k]
		if !ok {
			return fmt.Errorf("offer %s: %w", k, ErrNotFound)
		}
		if cur.Status != u.ExpectStatus {
			return fmt.Errorf("offer %s is %s, expected %s: %w", k, cur.Status, u.ExpectStatus, ErrConflict)
		}
	}

	if u := t.Opportunity; u != nil {
		next := u.Next.Clone()
		next.Version = u.ExpectVersion + 1
		s.m.opportunities[next.ID] = next
	}
	for _, o := range t.Create {
		k := o.Key()
		s.m.offers[k] = o.Clone()
		s.m.byOpportunity[k.OpportunityID] = append(s.m.byOpportunity[k.OpportunityID], k)
	}
	for _, u := range t.Offers {
		s.m.offers[u.Next.Key()] = u.Next.Clone()
	}
	return nil
}
