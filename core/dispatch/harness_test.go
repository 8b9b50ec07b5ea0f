package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/wavematch/core/audit"
	"github.com/kilianp07/wavematch/core/events"
	"github.com/kilianp07/wavematch/core/model"
	"github.com/kilianp07/wavematch/core/notify"
	"github.com/kilianp07/wavematch/core/store"
	"github.com/kilianp07/wavematch/infra/logger"
	"github.com/kilianp07/wavematch/internal/eventbus"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Enqueue(n notify.Notification) error {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) Sent() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

// backend lets tests swap one of the memory stores.
type backend struct {
	*store.Memory
	offers store.OfferStore
}

func (b backend) Offers() store.OfferStore {
	if b.offers != nil {
		return b.offers
	}
	return b.Memory.Offers()
}

type harness struct {
	d      *Dispatcher
	mem    *store.Memory
	audit  *audit.MemoryStore
	clock  *fakeClock
	notes  *recordingNotifier
	bus    *eventbus.TypedBus[events.Event]
	events <-chan events.Event
}

type harnessOption func(*harnessSetup)

type harnessSetup struct {
	cfg     Config
	offers  func(store.OfferStore) store.OfferStore
	auditor func(*audit.MemoryStore) audit.Store
}

func withConfig(f func(*Config)) harnessOption {
	return func(s *harnessSetup) { f(&s.cfg) }
}

func withOffers(wrap func(store.OfferStore) store.OfferStore) harnessOption {
	return func(s *harnessSetup) { s.offers = wrap }
}

func withAuditStore(wrap func(*audit.MemoryStore) audit.Store) harnessOption {
	return func(s *harnessSetup) { s.auditor = wrap }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })

	setup := harnessSetup{cfg: DefaultConfig()}
	for _, o := range opts {
		o(&setup)
	}
	h := &harness{
		mem:   store.NewMemory(),
		audit: audit.NewMemoryStore(),
		clock: newFakeClock(),
		notes: &recordingNotifier{},
		bus:   eventbus.NewTypedBuffered[events.Event](256),
	}
	h.events = h.bus.Subscribe()
	t.Cleanup(h.bus.Close)

	b := backend{Memory: h.mem}
	if setup.offers != nil {
		b.offers = setup.offers(h.mem.Offers())
	}
	var as audit.Store = h.audit
	if setup.auditor != nil {
		as = setup.auditor(h.audit)
	}
	d, err := New(setup.cfg, b, audit.NewAuditor(as, logger.NopLogger{}),
		WithClock(h.clock.Now),
		WithNotifier(h.notes),
		WithBus(h.bus),
		WithLogger(logger.NopLogger{}),
	)
	require.NoError(t, err)
	h.d = d
	return h
}

func rep(v float64) *float64 { return &v }

func (h *harness) candidate(id, region string, reputation float64, skills ...string) model.CandidateProfile {
	last := h.clock.Now().Add(-time.Hour)
	return model.CandidateProfile{
		ID:         id,
		Skills:     skills,
		Region:     region,
		Reputation: rep(reputation),
		LastActive: &last,
	}
}

func (h *harness) addCandidates(t *testing.T, cands ...model.CandidateProfile) {
	t.Helper()
	for _, c := range cands {
		require.NoError(t, h.mem.Profiles().Upsert(context.Background(), c))
	}
}

func (h *harness) addOpportunity(t *testing.T, opp model.Opportunity) model.Opportunity {
	t.Helper()
	if opp.Title == "" {
		opp.Title = "Mission " + opp.ID
	}
	out, err := h.d.CreateOpportunity(context.Background(), opp)
	require.NoError(t, err)
	return out
}

func (h *harness) offer(t *testing.T, oppID, candID string) model.Offer {
	t.Helper()
	o, err := h.mem.Offers().Get(context.Background(), model.OfferKey{OpportunityID: oppID, CandidateID: candID})
	require.NoError(t, err)
	return o
}

func (h *harness) opportunity(t *testing.T, id string) model.Opportunity {
	t.Helper()
	o, err := h.mem.Opportunities().Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (h *harness) statuses(t *testing.T, oppID string) map[string]model.OfferStatus {
	t.Helper()
	offers, err := h.mem.Offers().ListByOpportunity(context.Background(), oppID)
	require.NoError(t, err)
	out := make(map[string]model.OfferStatus, len(offers))
	for _, o := range offers {
		out[o.CandidateID] = o.Status
	}
	return out
}

// drain returns the events published so far.
func (h *harness) drain() []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-h.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func candidateIDs(offers []model.Offer) []string {
	out := make([]string, len(offers))
	for i, o := range offers {
		out[i] = o.CandidateID
	}
	return out
}
