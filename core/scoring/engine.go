package scoring

import (
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/wavematch/core/model"
)

// Weights applied to each score component. All weights are non-negative;
// the workload weight is subtracted.
type Weights struct {
	Skill      float64 `json:"skill"`
	Reputation float64 `json:"reputation"`
	Recency    float64 `json:"recency"`
	Workload   float64 `json:"workload"`
}

// Validate rejects negative weights and an all-zero weight vector.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"skill": w.Skill, "reputation": w.Reputation, "recency": w.Recency, "workload": w.Workload,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if w.Skill+w.Reputation+w.Recency == 0 {
		return fmt.Errorf("at least one positive weight is required")
	}
	return nil
}

// Engine computes match scores. The zero value is not usable; build it with
// NewEngine.
type Engine struct {
	Weights           Weights
	WorkloadCap       int
	DefaultReputation float64
}

// NewEngine returns an engine with the given weights. A non-positive cap
// falls back to 5 open offers.
func NewEngine(w Weights, workloadCap int, defaultReputation float64) Engine {
	if workloadCap <= 0 {
		workloadCap = 5
	}
	return Engine{Weights: w, WorkloadCap: workloadCap, DefaultReputation: defaultReputation}
}

// Score computes the snapshot of a single pair. recency and workloadPen are
// batch-dependent and computed by the caller (see Rank).
func (e Engine) Score(opp model.Opportunity, c model.CandidateProfile, recency, workloadPen float64) model.ScoreSnapshot {
	s := model.ScoreSnapshot{
		Skill:       Jaccard(opp.RequiredSkills, c.Skills),
		Reputation:  model.ClampReputation(c.ReputationOr(e.DefaultReputation)),
		Recency:     clamp01(recency),
		WorkloadPen: clamp01(workloadPen),
	}
	s.Match = e.Weights.Skill*s.Skill +
		e.Weights.Reputation*s.Reputation +
		e.Weights.Recency*s.Recency -
		e.Weights.Workload*s.WorkloadPen
	return s
}

// WorkloadPenalty scales an open offer count over [0, WorkloadCap].
func (e Engine) WorkloadPenalty(open int) float64 {
	if open <= 0 {
		return 0
	}
	return clamp01(float64(open) / float64(e.WorkloadCap))
}

// Ranked is a scored candidate.
type Ranked struct {
	Candidate model.CandidateProfile
	Score     model.ScoreSnapshot
	Open      int
}

// Rank scores every candidate against opp and sorts them best first. open
// holds the number of pending or accepted offers per candidate id; it is
// added to the workload stored on the profile.
func (e Engine) Rank(opp model.Opportunity, candidates []model.CandidateProfile, open map[string]int) []Ranked {
	recency := RecencyScores(candidates)
	out := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		n := open[c.ID] + c.Workload
		out = append(out, Ranked{
			Candidate: c,
			Score:     e.Score(opp, c, recency[c.ID], e.WorkloadPenalty(n)),
			Open:      n,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Less orders by match, then reputation, then candidate id.
func Less(a, b Ranked) bool {
	if a.Score.Match != b.Score.Match {
		return a.Score.Match > b.Score.Match
	}
	if a.Score.Reputation != b.Score.Reputation {
		return a.Score.Reputation > b.Score.Reputation
	}
	return a.Candidate.ID < b.Candidate.ID
}

// Jaccard returns |a∩b| / |a∪b| over normalised skill sets, 0 when both are
// empty.
func Jaccard(a, b []string) float64 {
	sa, sb := model.SkillSet(a), model.SkillSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	inter := 0
	for s := range sa {
		if _, ok := sb[s]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// RecencyScores min-max scales last activity over the batch: the most
// recently active candidate gets 1 and the least recent 0. Candidates
// without recorded activity get 0, or 1 when nobody in the batch has any.
// When every known activity time is the same those candidates get 1.
func RecencyScores(candidates []model.CandidateProfile) map[string]float64 {
	out := make(map[string]float64, len(candidates))
	var lo, hi float64
	known := 0
	for _, c := range candidates {
		if c.LastActive == nil {
			continue
		}
		v := seconds(*c.LastActive)
		if known == 0 || v < lo {
			lo = v
		}
		if known == 0 || v > hi {
			hi = v
		}
		known++
	}
	for _, c := range candidates {
		switch {
		case c.LastActive == nil && known > 0:
			out[c.ID] = 0
		case c.LastActive == nil || hi <= lo:
			out[c.ID] = 1
		default:
			out[c.ID] = (seconds(*c.LastActive) - lo) / (hi - lo)
		}
	}
	return out
}

// seconds avoids time.Sub, which saturates for spans over ~292 years.
func seconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
