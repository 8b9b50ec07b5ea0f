package metrics

import (
	"context"

	"github.com/kilianp07/wavematch/core/events"
	"github.com/kilianp07/wavematch/core/logger"
)

// Forward translates bus events into sink records until ctx is done or the
// channel closes. Sink errors are logged and never stop the loop.
func Forward(ctx context.Context, sub <-chan events.Event, sink MetricsSink, log logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := record(sink, ev); err != nil {
				log.Warnf("metrics sink %s: %v", ev.EventName(), err)
			}
		}
	}
}

func record(sink MetricsSink, ev events.Event) error {
	switch e := ev.(type) {
	case events.WaveEvent:
		return sink.RecordWave(WaveRecord{
			OpportunityID: e.OpportunityID,
			Wave:          e.Wave,
			Offers:        len(e.Offers),
			Groups:        e.Groups,
			Duration:      e.Duration,
			Time:          e.Time,
		})
	case events.OfferEvent:
		r, ok := sink.(OfferRecorder)
		if !ok {
			return nil
		}
		return r.RecordOffer(OfferRecord{
			OpportunityID: e.Offer.OpportunityID,
			CandidateID:   e.Offer.CandidateID,
			Group:         e.Offer.Group,
			Wave:          e.Offer.Wave,
			From:          e.From,
			To:            e.Offer.Status,
			Reason:        e.Reason,
			Latency:       e.Time.Sub(e.Offer.DispatchedAt),
			Time:          e.Time,
		})
	case events.EscalationEvent:
		if r, ok := sink.(EscalationRecorder); ok {
			return r.RecordEscalation(EscalationRecord{OpportunityID: e.OpportunityID, Reasons: e.Reasons, Time: e.Time})
		}
	case events.SweepEvent:
		if r, ok := sink.(SweepRecorder); ok {
			return r.RecordSweep(SweepRecord{Expired: e.Expired, Conflict: e.Conflict, Duration: e.Duration, Time: e.Time})
		}
	}
	return nil
}
