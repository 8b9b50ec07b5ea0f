// Package metrics defines the sink contract used to export matching activity
// to observability backends. Sinks like PromSink and InfluxSink live in
// infra/metrics and can be combined with NewMultiSink; the factory helpers
// return a MultiSink automatically when multiple sinks are configured.
// Forward feeds a sink from the dispatcher event bus.
package metrics
