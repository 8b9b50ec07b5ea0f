package audit

import "fmt"

// Config defines settings for decision log storage and rotation.
type Config struct {
	// Backend selects the store type: "memory", "jsonl" or "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
	// MaxSizeMB enables rotation of the jsonl backend when positive.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" && c.Backend != "memory" {
		if c.Backend == "sqlite" {
			c.Path = "audit.db"
		} else {
			c.Path = "audit.jsonl"
		}
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "jsonl", "sqlite":
	default:
		return fmt.Errorf("unknown audit backend %q", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("audit path is required")
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("audit rotation values must not be negative")
	}
	return nil
}

// Open builds the store selected by cfg.
func Open(cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		if cfg.MaxSizeMB > 0 {
			return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		}
		return NewJSONLStore(cfg.Path)
	}
}
