package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/wavematch/core/model"
)

// Seed is a fixture of candidates and opportunities.
type Seed struct {
	Candidates    []model.CandidateProfile `json:"candidates" yaml:"candidates"`
	Opportunities []model.Opportunity      `json:"opportunities" yaml:"opportunities"`
}

// LoadSeed reads a YAML or JSON fixture selected by file extension.
func LoadSeed(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, err
	}
	defer func() { _ = f.Close() }()
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeSeed(f, format)
}

// DecodeSeed decodes a fixture in the given format ("yaml", "yml" or "json").
func DecodeSeed(r io.Reader, format string) (Seed, error) {
	var s Seed
	var err error
	switch format {
	case "yaml", "yml":
		err = yaml.NewDecoder(r).Decode(&s)
	case "json":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		err = dec.Decode(&s)
	default:
		return Seed{}, fmt.Errorf("unsupported seed format: %s", format)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return s, nil
}

// Apply writes the fixture. Opportunities without a status start open and
// existing ones are left untouched.
func (s Seed) Apply(ctx context.Context, profiles ProfileStore, opps OpportunityStore, now time.Time) error {
	for _, c := range s.Candidates {
		if err := profiles.Upsert(ctx, c); err != nil {
			return fmt.Errorf("seed candidate %s: %w", c.ID, err)
		}
	}
	for _, o := range s.Opportunities {
		if o.Status == "" {
			o.Status = model.OpportunityOpen
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
		if err := opps.Create(ctx, o); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				continue
			}
			return fmt.Errorf("seed opportunity %s: %w", o.ID, err)
		}
	}
	return nil
}
