package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/wavematch/core/dispatch"
)

func write(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := write(t, "config.yaml", `matching:
  weights:
    skill: 0.6
    reputation: 0.2
    recency: 0.1
    workload: 0.1
  wave_size: 3
  offer_timeout: 2h
  acceptance_quota: 2
  fairness:
    min_share: 0.1
    need_index:
      FR: 1.5
  escalation:
    elastic_keywords: ["forever"]
audit:
  backend: sqlite
  path: /tmp/audit.db
store:
  backend: postgres
  dsn: postgres://u:p@localhost/wavematch
notify:
  workers: 2
  sinks:
    - type: log
    - type: mqtt
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  qos:
    offer: 1
metrics:
  prometheus_port: "9090"
  sinks:
    - type: "nop"
api:
  addr: ":8080"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"weights.skill", cfg.Matching.Weights.Skill, 0.6},
		{"wave_size", cfg.Matching.WaveSize, 3},
		{"top_n default", cfg.Matching.TopN, 20},
		{"offer_timeout", cfg.Matching.OfferTimeout, 2 * time.Hour},
		{"acceptance_quota", cfg.Matching.AcceptanceQuota, 2},
		{"min_share", cfg.Matching.Fairness.MinShare, 0.1},
		{"max_share default", cfg.Matching.Fairness.MaxShare, 1.0},
		{"need_index", cfg.Matching.Fairness.NeedIndex["FR"], 1.5},
		{"keywords", len(cfg.Matching.Escalation.ElasticKeywords), 1},
		{"audit.backend", cfg.Audit.Backend, "sqlite"},
		{"store.backend", cfg.Store.Backend, "postgres"},
		{"notify.workers", cfg.Notify.Workers, 2},
		{"notify.queue_size default", cfg.Notify.QueueSize, 256},
		{"notify.sinks", len(cfg.Notify.Sinks), 2},
		{"mqtt.broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"mqtt.prefix default", cfg.MQTT.TopicPrefix, "wavematch"},
		{"mqtt.qos", cfg.MQTT.QoS["offer"], byte(1)},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"prometheus_port", cfg.Metrics.PrometheusPort, "9090"},
		{"api.addr", cfg.API.Addr, ":8080"},
		{"sentry.environment", cfg.Sentry.Environment, "production"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(write(t, "config.json", `{"api": {"token": "s3cret"}}`))
	require.NoError(t, err)
	assert.Equal(t, dispatch.DefaultConfig().Weights, cfg.Matching.Weights)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "jsonl", cfg.Audit.Backend)
	assert.Nil(t, cfg.MQTT)
	require.Len(t, cfg.Notify.Sinks, 1)
	assert.Equal(t, "log", cfg.Notify.Sinks[0].Type)
	assert.Equal(t, "s3cret", cfg.API.Token)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("K_MATCHING__WEIGHTS__SKILL", "0.9")
	t.Setenv("K_MATCHING__WAVE_SIZE", "7")
	cfg, err := Load(write(t, "config.yml", "matching:\n  wave_size: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Matching.Weights.Skill)
	assert.Equal(t, 7, cfg.Matching.WaveSize)
}

func TestEnvOverrideNestedSections(t *testing.T) {
	t.Setenv("K_MATCHING__FAIRNESS__MIN_SHARE", "0.1")
	t.Setenv("K_STORE__BACKEND", "postgres")
	t.Setenv("K_STORE__DSN", "postgres://wm@db/wavematch")
	t.Setenv("K_API__TOKEN", "from-env")
	cfg, err := Load(write(t, "config.json", `{"store": {"backend": "memory"}, "api": {"token": "from-file"}}`))
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Matching.Fairness.MinShare)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "postgres://wm@db/wavematch", cfg.Store.DSN)
	assert.Equal(t, "from-env", cfg.API.Token)
}

func TestEnvOverrideInvalidValueRejected(t *testing.T) {
	t.Setenv("K_MATCHING__WEIGHTS__RECENCY", "-2")
	_, err := Load(write(t, "config.yml", "matching:\n  wave_size: 3\n"))
	var ce *dispatch.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "matching.weights", ce.Field)
}

func TestLoadKeepsExplicitZeroReputation(t *testing.T) {
	cfg, err := Load(write(t, "config.yml", "matching:\n  default_reputation: 0\n  reputation:\n    accept: 0\n    expire: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Matching.BaseReputation())
	assert.Equal(t, 0.0, cfg.Matching.Reputation.AcceptDelta())
	assert.Equal(t, 0.0, cfg.Matching.Reputation.ExpireDelta())
	assert.Equal(t, -0.01, cfg.Matching.Reputation.RefuseDelta())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"negative weight", "matching:\n  weights:\n    skill: -1\n", "matching.weights"},
		{"max share below min", "matching:\n  fairness:\n    min_share: 0.6\n    max_share: 0.4\n", "matching.fairness"},
		{"unknown store", "store:\n  backend: mongo\n", "store"},
		{"postgres without dsn", "store:\n  backend: postgres\n", "store"},
		{"unknown audit", "audit:\n  backend: csv\n", "audit"},
		{"mqtt sink without broker", "notify:\n  sinks:\n    - type: mqtt\n", "notify.sinks"},
		{"mqtt without broker", "mqtt:\n  client_id: x\n", "mqtt"},
		{"sample rate", "sentry:\n  traces_sample_rate: 2\n", "sentry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write(t, "config.yaml", tt.data))
			if !errors.Is(err, dispatch.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			var ce *dispatch.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := Load(write(t, "config.toml", ""))
	assert.Error(t, err)
}
