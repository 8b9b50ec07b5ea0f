package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/wavematch/core/fairness"
	"github.com/kilianp07/wavematch/core/model"
	"github.com/kilianp07/wavematch/core/scoring"
)

// Config defines matching and dispatch settings.
type Config struct {
	Weights           scoring.Weights `json:"weights"`
	WorkloadCap       int             `json:"workload_cap"`
	// DefaultReputation scores candidates that were never rated. Nil means
	// model.DefaultReputation; an explicit 0 is kept.
	DefaultReputation *float64 `json:"default_reputation"`
	// WaveSize is the number of offers sent per wave, taken from the TopN
	// best ranked candidates.
	WaveSize        int           `json:"wave_size"`
	TopN            int           `json:"top_n"`
	OfferTimeout    time.Duration `json:"offer_timeout"`
	DispatchTimeout time.Duration `json:"dispatch_timeout"`
	SweepInterval   time.Duration `json:"sweep_interval"`
	// AcceptanceQuota is the number of accepted offers that closes a
	// multiple-quotes opportunity.
	AcceptanceQuota int              `json:"acceptance_quota"`
	Channel         string           `json:"channel"`
	Fairness        fairness.Config  `json:"fairness"`
	Reputation      ReputationDeltas `json:"reputation"`
	Escalation      EscalationConfig `json:"escalation"`
}

// ReputationDeltas are added to a candidate reputation after each outcome.
// A nil delta takes its default; set it to 0 to disable that nudge.
type ReputationDeltas struct {
	Accept   *float64 `json:"accept"`
	Refuse   *float64 `json:"refuse"`
	Complete *float64 `json:"complete"`
	Expire   *float64 `json:"expire"`
}

var defaultDeltas = struct{ accept, refuse, complete, expire float64 }{0.02, -0.01, 0.05, -0.02}

// AcceptDelta is applied when a candidate accepts an offer.
func (r ReputationDeltas) AcceptDelta() float64 { return valueOr(r.Accept, defaultDeltas.accept) }

// RefuseDelta is applied when a candidate refuses an offer.
func (r ReputationDeltas) RefuseDelta() float64 { return valueOr(r.Refuse, defaultDeltas.refuse) }

// CompleteDelta is applied to the confirmed candidate on completion.
func (r ReputationDeltas) CompleteDelta() float64 { return valueOr(r.Complete, defaultDeltas.complete) }

// ExpireDelta is applied when an offer expires unanswered.
func (r ReputationDeltas) ExpireDelta() float64 { return valueOr(r.Expire, defaultDeltas.expire) }

// BaseReputation resolves DefaultReputation.
func (c Config) BaseReputation() float64 { return valueOr(c.DefaultReputation, model.DefaultReputation) }

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func fill(p **float64, def float64) {
	if *p == nil {
		v := def
		*p = &v
	}
}

// EscalationConfig holds the static risk thresholds checked on creation.
type EscalationConfig struct {
	MaxStatementLength int      `json:"max_statement_length"`
	ElasticKeywords    []string `json:"elastic_keywords"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

// SetDefaults fills unset values. Numeric fields treat 0 as unset, except
// DefaultReputation and the reputation deltas, which are nil when unset.
func (c *Config) SetDefaults() {
	if c.Weights == (scoring.Weights{}) {
		c.Weights = scoring.Weights{Skill: 0.5, Reputation: 0.2, Recency: 0.2, Workload: 0.2}
	}
	if c.WorkloadCap == 0 {
		c.WorkloadCap = 5
	}
	fill(&c.DefaultReputation, model.DefaultReputation)
	if c.WaveSize == 0 {
		c.WaveSize = 5
	}
	if c.TopN == 0 {
		c.TopN = 20
	}
	if c.OfferTimeout == 0 {
		c.OfferTimeout = 24 * time.Hour
	}
	if c.DispatchTimeout == 0 {
		c.DispatchTimeout = 10 * time.Second
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
	if c.AcceptanceQuota == 0 {
		c.AcceptanceQuota = 3
	}
	if c.Channel == "" {
		c.Channel = "default"
	}
	fill(&c.Reputation.Accept, defaultDeltas.accept)
	fill(&c.Reputation.Refuse, defaultDeltas.refuse)
	fill(&c.Reputation.Complete, defaultDeltas.complete)
	fill(&c.Reputation.Expire, defaultDeltas.expire)
	if c.Escalation.MaxStatementLength == 0 {
		c.Escalation.MaxStatementLength = 2000
	}
	if c.Escalation.ElasticKeywords == nil {
		c.Escalation.ElasticKeywords = []string{"open-ended", "as needed", "ongoing", "etc"}
	}
	c.Fairness.SetDefaults()
}

// Validate returns a ConfigError for the first invalid setting.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return configErr("weights", err)
	}
	if c.WorkloadCap <= 0 {
		return configErr("workload_cap", errors.New("must be positive"))
	}
	if r := c.BaseReputation(); r < 0 || r > 1 {
		return configErr("default_reputation", fmt.Errorf("%v outside [0,1]", r))
	}
	if c.WaveSize <= 0 {
		return configErr("wave_size", errors.New("must be positive"))
	}
	if c.TopN < c.WaveSize {
		return configErr("top_n", fmt.Errorf("%d is smaller than wave_size %d", c.TopN, c.WaveSize))
	}
	if c.OfferTimeout <= 0 {
		return configErr("offer_timeout", errors.New("must be positive"))
	}
	if c.DispatchTimeout <= 0 {
		return configErr("dispatch_timeout", errors.New("must be positive"))
	}
	if c.SweepInterval <= 0 {
		return configErr("sweep_interval", errors.New("must be positive"))
	}
	if c.AcceptanceQuota <= 0 {
		return configErr("acceptance_quota", errors.New("must be positive"))
	}
	for name, d := range map[string]float64{
		"accept": c.Reputation.AcceptDelta(), "refuse": c.Reputation.RefuseDelta(),
		"complete": c.Reputation.CompleteDelta(), "expire": c.Reputation.ExpireDelta(),
	} {
		if d < -1 || d > 1 {
			return configErr("reputation."+name, fmt.Errorf("delta %v outside [-1,1]", d))
		}
	}
	if c.Escalation.MaxStatementLength < 0 {
		return configErr("escalation.max_statement_length", errors.New("must not be negative"))
	}
	if err := c.Fairness.Validate(); err != nil {
		return configErr("fairness", err)
	}
	return nil
}
