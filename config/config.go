// Package config loads the service configuration from a YAML or JSON file
// with K_-prefixed environment overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/wavematch/core/audit"
	"github.com/kilianp07/wavematch/core/dispatch"
	"github.com/kilianp07/wavematch/core/factory"
	"github.com/kilianp07/wavematch/core/metrics"
	"github.com/kilianp07/wavematch/core/notify"
	"github.com/kilianp07/wavematch/infra/mqtt"
)

type Config struct {
	Matching dispatch.Config `json:"matching"`
	Audit    audit.Config    `json:"audit"`
	Store    StoreConfig     `json:"store"`
	Notify   NotifyConfig    `json:"notify"`
	// MQTT is optional; without it offers are only logged.
	MQTT    *mqtt.Config   `json:"mqtt"`
	Metrics metrics.Config `json:"metrics"`
	Sentry  SentryConfig   `json:"sentry"`
	API     APIConfig      `json:"api"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `json:"backend"`
	DSN     string `json:"dsn"`
	// Seed is an optional YAML or JSON fixture applied at startup.
	Seed string `json:"seed"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
}

func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "postgres":
		if c.DSN == "" {
			return errors.New("dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Backend)
	}
	return nil
}

// NotifyConfig sizes the delivery queue and lists the sinks fed by it.
type NotifyConfig struct {
	notify.QueueConfig `json:",squash"`
	Sinks              []factory.ModuleConfig `json:"sinks"`
}

func (c *NotifyConfig) SetDefaults() {
	c.QueueConfig.SetDefaults()
	if len(c.Sinks) == 0 {
		c.Sinks = []factory.ModuleConfig{{Type: "log"}}
	}
}

// APIConfig configures the read-only HTTP API. An empty Addr disables it.
type APIConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Matching.SetDefaults()
	c.Audit.SetDefaults()
	c.Store.SetDefaults()
	c.Notify.SetDefaults()
	if c.MQTT != nil {
		c.MQTT.SetDefaults()
	}
	c.Sentry.SetDefaults()
}

// Validate returns a *dispatch.ConfigError naming the first invalid field.
func (c Config) Validate() error {
	if err := c.Matching.Validate(); err != nil {
		var ce *dispatch.ConfigError
		if errors.As(err, &ce) {
			return &dispatch.ConfigError{Field: "matching." + ce.Field, Err: ce.Err}
		}
		return section("matching", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return section("audit", err)
	}
	if err := c.Store.Validate(); err != nil {
		return section("store", err)
	}
	if c.MQTT != nil {
		if err := c.MQTT.Validate(); err != nil {
			return section("mqtt", err)
		}
	}
	for _, s := range c.Notify.Sinks {
		if s.Type == "mqtt" && c.MQTT == nil {
			return section("notify.sinks", errors.New("mqtt sink requires the mqtt section"))
		}
	}
	if err := c.Sentry.Validate(); err != nil {
		return section("sentry", err)
	}
	return nil
}

func section(name string, err error) error {
	return &dispatch.ConfigError{Field: name, Err: err}
}

// Load reads path, applies environment overrides, defaults and validation.
// K_MATCHING__WEIGHTS__SKILL=0.6 overrides matching.weights.skill.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
