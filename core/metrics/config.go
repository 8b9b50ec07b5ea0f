package metrics

import "github.com/kilianp07/wavematch/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusPort exposes /metrics when set, e.g. "9090".
	PrometheusPort string `json:"prometheus_port"`
}
