package fairness

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/wavematch/core/audit"
)

// Config holds the quota parameters.
type Config struct {
	MinShare float64 `json:"min_share"`
	MaxShare float64 `json:"max_share"`
	// NeedIndex biases quotas toward under-served groups. Groups it does not
	// list weigh 1.0.
	NeedIndex map[string]float64 `json:"need_index"`
	// ShortlistSize is the number of seats per open opportunity.
	ShortlistSize int `json:"shortlist_size"`
	// Window is the rolling period over which usage is counted.
	Window time.Duration `json:"window"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.MaxShare == 0 {
		c.MaxShare = 1
	}
	if c.ShortlistSize == 0 {
		c.ShortlistSize = 10
	}
	if c.Window == 0 {
		c.Window = 30 * 24 * time.Hour
	}
}

// Validate checks the caps and need index.
func (c Config) Validate() error {
	if err := ValidateShares(c.MinShare, c.MaxShare); err != nil {
		return err
	}
	if err := ValidateNeedIndex(c.NeedIndex); err != nil {
		return err
	}
	if c.ShortlistSize <= 0 {
		return fmt.Errorf("shortlist_size must be positive")
	}
	if c.Window <= 0 {
		return fmt.Errorf("fairness window must be positive")
	}
	return nil
}

// Allocator computes quota targets and reads usage from the audit log.
type Allocator struct {
	cfg   Config
	audit audit.Store
	now   func() time.Time
}

// NewAllocator validates cfg and returns an allocator reading usage from
// store.
func NewAllocator(cfg Config, store audit.Store) (*Allocator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Allocator{cfg: cfg, audit: store, now: time.Now}, nil
}

// SetClock overrides the time source used for usage windows.
func (a *Allocator) SetClock(now func() time.Time) { a.now = now }

// Config returns the active configuration.
func (a *Allocator) Config() Config { return a.cfg }

// TotalSlots derives the number of seats to share for the given number of
// open opportunities.
func (a *Allocator) TotalSlots(openOpportunities int) int {
	return openOpportunities * a.cfg.ShortlistSize
}

// Targets returns the integer quota per group and the shares behind it.
func (a *Allocator) Targets(groups map[string]int, openOpportunities int) (map[string]int, map[string]float64, error) {
	shares, err := Shares(groups, a.cfg.NeedIndex, a.cfg.MinShare, a.cfg.MaxShare)
	if err != nil {
		return nil, nil, err
	}
	targets, err := ComputeTargets(groups, a.cfg.NeedIndex, a.TotalSlots(openOpportunities), a.cfg.MinShare, a.cfg.MaxShare)
	if err != nil {
		return nil, nil, err
	}
	return targets, shares, nil
}

// UsedCount counts audited assignments of group within the last window.
func (a *Allocator) UsedCount(ctx context.Context, group string, window time.Duration) (int, error) {
	if window <= 0 {
		window = a.cfg.Window
	}
	now := a.now()
	recs, err := a.audit.Query(ctx, audit.Query{Start: now.Add(-window), End: now, Group: group})
	if err != nil {
		return 0, fmt.Errorf("usage of %s: %w", group, err)
	}
	return len(recs), nil
}

// UsedCounts counts audited assignments per group since the given time.
func (a *Allocator) UsedCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	recs, err := a.audit.Query(ctx, audit.Query{Start: since, End: a.now()})
	if err != nil {
		return nil, fmt.Errorf("usage since %s: %w", since.Format(time.RFC3339), err)
	}
	used := make(map[string]int)
	for _, r := range recs {
		used[r.Group]++
	}
	return used, nil
}

// WindowUsage counts usage per group over the configured window.
func (a *Allocator) WindowUsage(ctx context.Context) (map[string]int, error) {
	return a.UsedCounts(ctx, a.now().Add(-a.cfg.Window))
}

// GroupStats describes one group in a fairness report.
type GroupStats struct {
	Group       string  `json:"group"`
	Candidates  int     `json:"candidates"`
	Target      int     `json:"target"`
	TargetShare float64 `json:"target_share"`
	Used        int     `json:"used"`
	UsedShare   float64 `json:"used_share"`
}

// Stats builds a per-group report of targets against usage since periodStart.
// Groups that only appear in the usage are reported with a zero target.
func (a *Allocator) Stats(ctx context.Context, periodStart time.Time, groups map[string]int, openOpportunities int) ([]GroupStats, error) {
	targets, shares, err := a.Targets(groups, openOpportunities)
	if err != nil {
		return nil, err
	}
	used, err := a.UsedCounts(ctx, periodStart)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range used {
		total += n
	}
	names := make(map[string]struct{}, len(targets)+len(used))
	for g := range targets {
		names[g] = struct{}{}
	}
	for g := range used {
		names[g] = struct{}{}
	}
	out := make([]GroupStats, 0, len(names))
	for g := range names {
		st := GroupStats{
			Group:       g,
			Candidates:  groups[g],
			Target:      targets[g],
			TargetShare: shares[g],
			Used:        used[g],
		}
		if total > 0 {
			st.UsedShare = float64(used[g]) / float64(total)
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out, nil
}
