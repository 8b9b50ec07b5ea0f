package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	offersCreated    *prometheus.CounterVec
	offerTransitions *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	sweepExpired     prometheus.Counter
	auditFailures    prometheus.Counter
	fairnessShare    *prometheus.GaugeVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, prometheus.Histogram, prometheus.Counter, prometheus.Counter, *prometheus.GaugeVec) {
	created := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wavematch_offers_created_total",
			Help: "Number of offers created, by wave number",
		},
		[]string{"wave"},
	)
	trans := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wavematch_offer_transitions_total",
			Help: "Number of stored offer status transitions",
		},
		[]string{"from", "to"},
	)
	dur := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wavematch_dispatch_duration_seconds",
			Help:    "Duration of DispatchWave calls",
			Buckets: prometheus.DefBuckets,
		},
	)
	swept := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wavematch_sweep_expired_total",
			Help: "Number of pending offers expired by the sweeper",
		},
	)
	auditFail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wavematch_audit_failures_total",
			Help: "Number of decisions that could not be audited",
		},
	)
	share := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wavematch_fairness_share",
			Help: "Target share per fairness group at the last dispatch",
		},
		[]string{"group"},
	)
	return created, trans, dur, swept, auditFail, share
}

func init() {
	offersCreated, offerTransitions, dispatchDuration, sweepExpired, auditFailures, fairnessShare = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(offersCreated, offerTransitions, dispatchDuration, sweepExpired, auditFailures, fairnessShare)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	offersCreated, offerTransitions, dispatchDuration, sweepExpired, auditFailures, fairnessShare = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
