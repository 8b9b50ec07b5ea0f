// Package infra groups the adapters wavematch runs against: the zerolog
// logger, the MQTT notifier and response listener, the Postgres stores,
// the prometheus and influx sinks and the Sentry monitor. Domain packages
// under core import it only from tests.
package infra
