package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/wavematch/core/audit"
	"github.com/kilianp07/wavematch/core/events"
	"github.com/kilianp07/wavematch/core/fairness"
	"github.com/kilianp07/wavematch/core/logger"
	"github.com/kilianp07/wavematch/core/model"
	"github.com/kilianp07/wavematch/core/notify"
	"github.com/kilianp07/wavematch/core/scoring"
	"github.com/kilianp07/wavematch/core/store"
	"github.com/kilianp07/wavematch/internal/eventbus"
)

// Notifier accepts notifications for asynchronous delivery. notify.Queue
// implements it.
type Notifier interface {
	Enqueue(n notify.Notification) error
}

// Dispatcher owns the offer state machine. Every mutation of offers and
// opportunities goes through it, serialised per opportunity.
type Dispatcher struct {
	cfg      Config
	profiles store.ProfileStore
	opps     store.OpportunityStore
	offers   store.OfferStore
	engine   scoring.Engine
	alloc    *fairness.Allocator
	auditor  *audit.Auditor
	notifier Notifier
	bus      *eventbus.TypedBus[events.Event]
	log      logger.Logger
	locks    *keyedMutex
	now      func() time.Time
	newID    func() string

	sweepMu     sync.Mutex
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithNotifier sets where offer notifications are queued.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithBus publishes dispatcher events on bus.
func WithBus(bus *eventbus.TypedBus[events.Event]) Option {
	return func(d *Dispatcher) { d.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithIDGenerator replaces the uuid generator used for offer and
// notification ids.
func WithIDGenerator(gen func() string) Option {
	return func(d *Dispatcher) { d.newID = gen }
}

// New validates cfg and builds a dispatcher on top of the given backend.
// Invalid settings are reported as a *ConfigError.
func New(cfg Config, backend store.Backend, auditor *audit.Auditor, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil || auditor == nil {
		return nil, fmt.Errorf("dispatcher requires a store backend and an auditor")
	}
	alloc, err := fairness.NewAllocator(cfg.Fairness, auditor.Store())
	if err != nil {
		return nil, configErr("fairness", err)
	}
	d := &Dispatcher{
		cfg:      cfg,
		profiles: backend.Profiles(),
		opps:     backend.Opportunities(),
		offers:   backend.Offers(),
		engine:   scoring.NewEngine(cfg.Weights, cfg.WorkloadCap, cfg.BaseReputation()),
		alloc:    alloc,
		auditor:  auditor,
		log:      nopLogger{},
		locks:    newKeyedMutex(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(d)
	}
	alloc.SetClock(d.now)
	return d, nil
}

// Config returns the configuration the dispatcher runs with.
func (d *Dispatcher) Config() Config { return d.cfg }

// Allocator returns the fairness allocator.
func (d *Dispatcher) Allocator() *fairness.Allocator { return d.alloc }

// CreateOpportunity stores opp as open and runs the escalation check.
func (d *Dispatcher) CreateOpportunity(ctx context.Context, opp model.Opportunity) (model.Opportunity, error) {
	if err := opp.Validate(); err != nil {
		return model.Opportunity{}, err
	}
	if opp.Status != "" && opp.Status != model.OpportunityOpen {
		return model.Opportunity{}, fmt.Errorf("opportunity %s: new opportunities must be open, got %s", opp.ID, opp.Status)
	}
	opp = opp.Clone()
	opp.Status = model.OpportunityOpen
	opp.Wave = 0
	opp.SelectedOffer = nil
	if opp.CreatedAt.IsZero() {
		opp.CreatedAt = d.now()
	}
	if err := d.opps.Create(ctx, opp); err != nil {
		return model.Opportunity{}, fmt.Errorf("create opportunity %s: %w", opp.ID, err)
	}
	stored, err := d.opps.Get(ctx, opp.ID)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("create opportunity %s: %w", opp.ID, err)
	}
	d.log.Infof("opportunity %s created", opp.ID)
	d.EscalationCheck(stored)
	return stored, nil
}

// WaveParams overrides the configured wave settings for one call. Zero
// values fall back to the configuration.
type WaveParams struct {
	WaveSize int
	TopN     int
	Timeout  time.Duration
}

func (d *Dispatcher) resolve(p WaveParams) WaveParams {
	if p.WaveSize <= 0 {
		p.WaveSize = d.cfg.WaveSize
	}
	if p.TopN <= 0 {
		p.TopN = d.cfg.TopN
	}
	if p.TopN < p.WaveSize {
		p.TopN = p.WaveSize
	}
	if p.Timeout <= 0 {
		p.Timeout = d.cfg.OfferTimeout
	}
	return p
}

// WaveResult describes a dispatched wave.
type WaveResult struct {
	Opportunity model.Opportunity `json:"opportunity"`
	Wave        int               `json:"wave"`
	// Offers are in ranked order.
	Offers  []model.Offer  `json:"offers"`
	Targets map[string]int `json:"targets"`
	// AuditFailures counts decisions that could not be recorded. The offers
	// exist regardless.
	AuditFailures int `json:"audit_failures"`
}

// DispatchWave ranks the candidates that were never offered opp, picks up to
// WaveSize of the TopN best while favouring groups below their quota, and
// stores them as pending offers together with the opportunity's next wave
// number. The whole call is bounded by the configured dispatch timeout.
func (d *Dispatcher) DispatchWave(ctx context.Context, oppID string, p WaveParams) (WaveResult, error) {
	start := time.Now()
	p = d.resolve(p)
	ctx, cancel := context.WithTimeout(ctx, d.cfg.DispatchTimeout)
	defer cancel()

	unlock, err := d.locks.Lock(ctx, oppID)
	if err != nil {
		return WaveResult{}, fmt.Errorf("dispatch %s: waiting for lock: %w", oppID, err)
	}
	defer unlock()

	opp, err := d.opps.Get(ctx, oppID)
	if err != nil {
		return WaveResult{}, fmt.Errorf("dispatch %s: %w", oppID, err)
	}
	if !opp.Status.Dispatchable() {
		return WaveResult{}, fmt.Errorf("dispatch %s in status %s: %w", oppID, opp.Status, ErrOpportunityClosed)
	}

	pool, err := d.profiles.ListCandidates(ctx, store.CandidateFilter{Region: opp.RegionFilter()})
	if err != nil {
		return WaveResult{}, fmt.Errorf("dispatch %s: list candidates: %w", oppID, err)
	}
	existing, err := d.offers.ListByOpportunity(ctx, oppID)
	if err != nil {
		return WaveResult{}, fmt.Errorf("dispatch %s: list offers: %w", oppID, err)
	}
	eligible := excludeNotified(pool, existing)
	if len(eligible) == 0 {
		d.log.Warnf("dispatch %s: no eligible candidates (pool %d, already notified %d)", oppID, len(pool), len(existing))
		return WaveResult{}, fmt.Errorf("dispatch %s: %w", oppID, ErrNoEligibleCandidates)
	}

	ids := make([]string, len(eligible))
	for i, c := range eligible {
		ids[i] = c.ID
	}
	open, err := d.offers.OpenCounts(ctx, ids)
	if err != nil {
		return WaveResult{}, fmt.Errorf("dispatch %s: open counts: %w", oppID, err)
	}
	ranked := d.engine.Rank(opp, eligible, open)
	if len(ranked) > p.TopN {
		ranked = ranked[:p.TopN]
	}

	groups := groupCounts(pool)
	openOpps, err := d.opps.List(ctx, model.OpportunityOpen, model.OpportunityMatching)
	if err != nil {
		return WaveResult{}, fmt.Errorf("dispatch %s: list opportunities: %w", oppID, err)
	}
	targets, shares, err := d.alloc.Targets(groups, len(openOpps))
	if err != nil {
		return WaveResult{}, fmt.Errorf("dispatch %s: fairness targets: %w", oppID, err)
	}
	used, err := d.alloc.WindowUsage(ctx)
	if err != nil {
		return WaveResult{}, fmt.Errorf("dispatch %s: fairness usage: %w", oppID, err)
	}
	chosen := selectWave(ranked, p.WaveSize, targets, used)

	now := d.now()
	wave := opp.Wave + 1
	offers := make([]model.Offer, len(chosen))
	for i, r := range chosen {
		offers[i] = model.Offer{
			ID:            d.newID(),
			OpportunityID: opp.ID,
			CandidateID:   r.Candidate.ID,
			Group:         r.Candidate.Group(),
			Wave:          wave,
			Status:        model.OfferPending,
			Score:         r.Score,
			DispatchedAt:  now,
			ExpiresAt:     now.Add(p.Timeout),
		}
	}
	next := opp.Clone()
	next.Wave = wave
	if next.Status == model.OpportunityOpen {
		next.Status = model.OpportunityMatching
	}
	err = d.offers.Apply(ctx, store.Transition{
		Opportunity: &store.OpportunityUpdate{Next: next, ExpectStatus: opp.Status, ExpectVersion: opp.Version},
		Create:      offers,
	})
	if err != nil {
		d.log.Errorf("dispatch %s wave %d: %v", oppID, wave, err)
		return WaveResult{}, fmt.Errorf("dispatch %s wave %d: %w", oppID, wave, err)
	}
	next.Version = opp.Version + 1

	// The offers are durable from here on; nothing below may fail the call.
	res := WaveResult{Opportunity: next, Wave: wave, Offers: offers, Targets: targets}
	bg := context.WithoutCancel(ctx)
	perGroup := make(map[string]int)
	for _, o := range offers {
		_, err := d.auditor.Record(bg, o, o.Score, o.Group, targets[o.Group], used[o.Group]+perGroup[o.Group])
		perGroup[o.Group]++
		if err != nil {
			auditFailures.Inc()
			res.AuditFailures++
		}
		d.enqueue(next, o)
	}
	offersCreated.WithLabelValues(strconv.Itoa(wave)).Add(float64(len(offers)))
	for g, s := range shares {
		fairnessShare.WithLabelValues(g).Set(s)
	}
	elapsed := time.Since(start)
	dispatchDuration.Observe(elapsed.Seconds())
	d.publish(events.WaveEvent{
		OpportunityID: oppID,
		Wave:          wave,
		Offers:        offers,
		Groups:        perGroup,
		Duration:      elapsed,
		Time:          now,
	})
	d.log.Infow("wave dispatched", logger.Fields{
		"opportunity_id": oppID,
		"wave":           wave,
		"offers":         len(offers),
		"eligible":       len(eligible),
		"audit_failures": res.AuditFailures,
	})
	return res, nil
}

func (d *Dispatcher) enqueue(opp model.Opportunity, o model.Offer) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Enqueue(notify.ForOffer(d.newID(), opp, o, d.cfg.Channel)); err != nil {
		d.log.Warnf("notify %s: %v", o.Key(), err)
	}
}

func (d *Dispatcher) publish(ev events.Event) {
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}

// transitioned counts and publishes stored offer transitions.
func (d *Dispatcher) transitioned(reason string, at time.Time, updates ...store.OfferUpdate) {
	for _, u := range updates {
		offerTransitions.WithLabelValues(string(u.ExpectStatus), string(u.Next.Status)).Inc()
		d.publish(events.OfferEvent{Offer: u.Next, From: u.ExpectStatus, Reason: reason, Time: at})
	}
}

// nudge applies a reputation delta. Failures never undo the transition that
// caused them.
func (d *Dispatcher) nudge(ctx context.Context, candidateID string, delta float64, why string) {
	if delta == 0 {
		return
	}
	rep, err := d.profiles.UpdateReputation(context.WithoutCancel(ctx), candidateID, delta)
	if err != nil {
		d.log.Errorf("reputation %s (%s %+.3f): %v", candidateID, why, delta, err)
		return
	}
	d.log.Debugf("reputation %s %s %+.3f -> %.3f", candidateID, why, delta, rep)
}

func excludeNotified(pool []model.CandidateProfile, existing []model.Offer) []model.CandidateProfile {
	notified := make(map[string]struct{}, len(existing))
	for _, o := range existing {
		notified[o.CandidateID] = struct{}{}
	}
	out := make([]model.CandidateProfile, 0, len(pool))
	for _, c := range pool {
		if _, ok := notified[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func groupCounts(pool []model.CandidateProfile) map[string]int {
	out := make(map[string]int)
	for _, c := range pool {
		out[c.Group()]++
	}
	return out
}

// selectWave picks up to size candidates from ranked. Candidates whose group
// is still below its target go first; the remaining seats are filled in rank
// order. The result keeps the ranked order.
func selectWave(ranked []scoring.Ranked, size int, targets, used map[string]int) []scoring.Ranked {
	if size >= len(ranked) {
		return ranked
	}
	headroom := make(map[string]int, len(targets))
	for g, t := range targets {
		headroom[g] = t - used[g]
	}
	picked := make([]bool, len(ranked))
	n := 0
	for i, r := range ranked {
		if n == size {
			break
		}
		g := r.Candidate.Group()
		if headroom[g] > 0 {
			headroom[g]--
			picked[i] = true
			n++
		}
	}
	for i := range ranked {
		if n == size {
			break
		}
		if !picked[i] {
			picked[i] = true
			n++
		}
	}
	out := make([]scoring.Ranked, 0, size)
	for i, r := range ranked {
		if picked[i] {
			out = append(out, r)
		}
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)        {}
func (nopLogger) Debugw(string, logger.Fields) {}
func (nopLogger) Infof(string, ...any)         {}
func (nopLogger) Infow(string, logger.Fields)  {}
func (nopLogger) Warnf(string, ...any)         {}
func (nopLogger) Errorf(string, ...any)        {}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
