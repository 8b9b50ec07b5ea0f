package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/wavematch/core/events"
	"github.com/kilianp07/wavematch/core/model"
	"github.com/kilianp07/wavematch/core/store"
)

// SweepResult summarises one sweep.
type SweepResult struct {
	Expired []model.Offer `json:"expired"`
	// Conflicts counts offers answered between listing and expiry.
	Conflicts int `json:"conflicts"`
}

// SweepExpired expires every pending offer whose deadline is at or before
// now. Each expiry is a compare-and-set on pending, so a response that wins
// the race is kept and counted as a conflict. Running it twice is harmless.
func (d *Dispatcher) SweepExpired(ctx context.Context, now time.Time) (SweepResult, error) {
	start := time.Now()
	due, err := d.offers.ListDue(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep: %w", err)
	}
	byOpp := make(map[string][]model.Offer)
	for _, o := range due {
		byOpp[o.OpportunityID] = append(byOpp[o.OpportunityID], o)
	}

	var res SweepResult
	var errs []error
	for _, oppID := range sortedKeys(byOpp) {
		expired, conflicts, err := d.sweepOpportunity(ctx, now, byOpp[oppID])
		res.Expired = append(res.Expired, expired...)
		res.Conflicts += conflicts
		if err != nil {
			errs = append(errs, err)
		}
	}

	sweepExpired.Add(float64(len(res.Expired)))
	d.publish(events.SweepEvent{
		Expired:  len(res.Expired),
		Conflict: res.Conflicts,
		Duration: time.Since(start),
		Time:     now,
	})
	if len(res.Expired) > 0 || res.Conflicts > 0 {
		d.log.Infof("sweep: %d offers expired, %d conflicts", len(res.Expired), res.Conflicts)
	}
	if len(errs) > 0 {
		return res, fmt.Errorf("sweep: %w", errors.Join(errs...))
	}
	return res, nil
}

func (d *Dispatcher) sweepOpportunity(ctx context.Context, now time.Time, due []model.Offer) ([]model.Offer, int, error) {
	unlock, err := d.locks.Lock(ctx, due[0].OpportunityID)
	if err != nil {
		return nil, 0, fmt.Errorf("sweep %s: waiting for lock: %w", due[0].OpportunityID, err)
	}
	defer unlock()

	var expired []model.Offer
	conflicts := 0
	for _, o := range due {
		next, err := o.Transition(model.OfferExpired)
		if err != nil {
			conflicts++
			continue
		}
		u := store.OfferUpdate{Next: next, ExpectStatus: model.OfferPending}
		if err := d.offers.Apply(ctx, store.Transition{Offers: []store.OfferUpdate{u}}); err != nil {
			if errors.Is(err, store.ErrConflict) {
				conflicts++
				continue
			}
			d.log.Errorf("sweep %s: %v", o.Key(), err)
			return expired, conflicts, err
		}
		expired = append(expired, next)
		d.transitioned("sweep", now, u)
		d.nudge(ctx, o.CandidateID, d.cfg.Reputation.ExpireDelta(), "expire")
	}
	return expired, conflicts, nil
}

// Start runs SweepExpired every SweepInterval until Stop is called or ctx is
// cancelled. A tick that is still running when the next one fires delays it.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.sweepMu.Lock()
	defer d.sweepMu.Unlock()
	if d.sweepCancel != nil {
		return errors.New("sweeper already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.sweepCancel = cancel
	d.sweepDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(d.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := d.SweepExpired(ctx, d.now()); err != nil && ctx.Err() == nil {
					d.log.Errorf("sweep tick: %v", err)
				}
			}
		}
	}()
	d.log.Infof("sweeper started (interval %s)", d.cfg.SweepInterval)
	return nil
}

// Stop halts the sweeper and waits for the running tick to finish.
func (d *Dispatcher) Stop() {
	d.sweepMu.Lock()
	cancel, done := d.sweepCancel, d.sweepDone
	d.sweepCancel, d.sweepDone = nil, nil
	d.sweepMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.log.Infof("sweeper stopped")
}
