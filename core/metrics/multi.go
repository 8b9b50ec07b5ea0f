package metrics

import "errors"

// MultiSink fans records out to multiple sinks. Every sink is called even
// when an earlier one fails; the failures are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordWave(rec WaveRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordWave(rec))
	}
	return errors.Join(errs...)
}

// RecordOffer forwards offer transitions to sinks supporting them.
func (m *MultiSink) RecordOffer(rec OfferRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(OfferRecorder); ok {
			errs = append(errs, r.RecordOffer(rec))
		}
	}
	return errors.Join(errs...)
}

// RecordEscalation forwards escalation events.
func (m *MultiSink) RecordEscalation(rec EscalationRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(EscalationRecorder); ok {
			errs = append(errs, r.RecordEscalation(rec))
		}
	}
	return errors.Join(errs...)
}

// RecordSweep forwards sweep summaries.
func (m *MultiSink) RecordSweep(rec SweepRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(SweepRecorder); ok {
			errs = append(errs, r.RecordSweep(rec))
		}
	}
	return errors.Join(errs...)
}
