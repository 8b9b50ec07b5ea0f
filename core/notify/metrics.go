package notify

import "github.com/prometheus/client_golang/prometheus"

const (
	resultDelivered = "delivered"
	resultFailed    = "failed"
	resultDropped   = "dropped"
)

var (
	notifications *prometheus.CounterVec
	queued        prometheus.Gauge
)

func newCollectors() (*prometheus.CounterVec, prometheus.Gauge) {
	n := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wavematch_notifications_total",
			Help: "Offer notifications by delivery result",
		},
		[]string{"result"},
	)
	q := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wavematch_notifications_queued",
		Help: "Notifications waiting for a worker",
	})
	return n, q
}

func init() {
	notifications, queued = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers the notification metrics on reg, or on the
// default registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(notifications, queued)
}

// ResetMetrics recreates the collectors and registers them on reg if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	notifications, queued = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
