package metrics

import (
	coremetrics "github.com/kilianp07/wavematch/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records matching activity in Prometheus metrics.
type PromSink struct {
	waveSize    *prometheus.HistogramVec
	waveGroups  *prometheus.CounterVec
	response    *prometheus.HistogramVec
	escalations *prometheus.CounterVec
	sweeps      prometheus.Histogram
}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
// The HTTP exporter should be started separately using Config.PrometheusPort.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	waveSize := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wavematch_wave_size",
		Help:    "Number of offers per dispatched wave",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
	}, []string{"wave"})
	waveGroups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wavematch_wave_offers_by_group_total",
		Help: "Offers dispatched per fairness group",
	}, []string{"group"})
	response := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wavematch_offer_response_seconds",
		Help:    "Time between dispatch and the offer transition",
		Buckets: []float64{30, 60, 300, 900, 1800, 3600, 4 * 3600, 24 * 3600},
	}, []string{"to", "reason"})
	escalations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wavematch_escalations_total",
		Help: "Escalation reasons matched at opportunity creation",
	}, []string{"reason"})
	sweeps := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wavematch_sweep_duration_seconds",
		Help:    "Duration of expiry sweeps",
		Buckets: prometheus.DefBuckets,
	})

	var err error
	if waveSize, err = register(reg, waveSize); err != nil {
		return nil, err
	}
	if waveGroups, err = register(reg, waveGroups); err != nil {
		return nil, err
	}
	if response, err = register(reg, response); err != nil {
		return nil, err
	}
	if escalations, err = register(reg, escalations); err != nil {
		return nil, err
	}
	if sweeps, err = register(reg, sweeps); err != nil {
		return nil, err
	}
	return &PromSink{waveSize: waveSize, waveGroups: waveGroups, response: response, escalations: escalations, sweeps: sweeps}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordWave observes the wave size and the per-group split.
func (s *PromSink) RecordWave(rec coremetrics.WaveRecord) error {
	s.waveSize.WithLabelValues(waveLabel(rec.Wave)).Observe(float64(rec.Offers))
	for g, n := range rec.Groups {
		s.waveGroups.WithLabelValues(g).Add(float64(n))
	}
	return nil
}

// RecordOffer observes how long candidates take to answer.
func (s *PromSink) RecordOffer(rec coremetrics.OfferRecord) error {
	if rec.Latency > 0 {
		s.response.WithLabelValues(string(rec.To), rec.Reason).Observe(rec.Latency.Seconds())
	}
	return nil
}

// RecordEscalation counts each matched reason.
func (s *PromSink) RecordEscalation(rec coremetrics.EscalationRecord) error {
	for _, r := range rec.Reasons {
		s.escalations.WithLabelValues(r).Inc()
	}
	return nil
}

// RecordSweep observes the sweep duration.
func (s *PromSink) RecordSweep(rec coremetrics.SweepRecord) error {
	s.sweeps.Observe(rec.Duration.Seconds())
	return nil
}

// waveLabel keeps the label cardinality bounded.
func waveLabel(w int) string {
	switch {
	case w <= 0:
		return "0"
	case w >= 5:
		return "5+"
	default:
		return string(rune('0' + w))
	}
}
