package metrics

import (
	"time"

	"github.com/kilianp07/wavematch/core/model"
)

// WaveRecord describes one dispatched wave.
type WaveRecord struct {
	OpportunityID string
	Wave          int
	Offers        int
	Groups        map[string]int
	Duration      time.Duration
	Time          time.Time
}

// MetricsSink records matching activity for observability purposes.
type MetricsSink interface {
	RecordWave(rec WaveRecord) error
}

// OfferRecord describes one offer transition.
type OfferRecord struct {
	OpportunityID string
	CandidateID   string
	Group         string
	Wave          int
	From          model.OfferStatus
	To            model.OfferStatus
	Reason        string
	// Latency is the time between dispatch and the transition.
	Latency time.Duration
	Time    time.Time
}

// OfferRecorder records offer transitions.
type OfferRecorder interface {
	RecordOffer(rec OfferRecord) error
}

// EscalationRecord captures the reasons an opportunity was flagged.
type EscalationRecord struct {
	OpportunityID string
	Reasons       []string
	Time          time.Time
}

// EscalationRecorder records escalation events.
type EscalationRecorder interface {
	RecordEscalation(rec EscalationRecord) error
}

// SweepRecord summarises one expiry sweep.
type SweepRecord struct {
	Expired  int
	Conflict int
	Duration time.Duration
	Time     time.Time
}

// SweepRecorder records sweep ticks.
type SweepRecorder interface {
	RecordSweep(rec SweepRecord) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordWave(WaveRecord) error             { return nil }
func (NopSink) RecordOffer(OfferRecord) error           { return nil }
func (NopSink) RecordEscalation(EscalationRecord) error { return nil }
func (NopSink) RecordSweep(SweepRecord) error           { return nil }
