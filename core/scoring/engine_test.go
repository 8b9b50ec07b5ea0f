package scoring

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/wavematch/core/model"
)

func defaultEngine() Engine {
	return NewEngine(Weights{Skill: 0.5, Reputation: 0.2, Recency: 0.2, Workload: 0.2}, 5, model.DefaultReputation)
}

func rep(v float64) *float64 { return &v }

func TestJaccard(t *testing.T) {
	cases := []struct {
		a, b []string
		want float64
	}{
		{nil, nil, 0},
		{[]string{"go"}, nil, 0},
		{[]string{"python", "nlp"}, []string{"nlp", "python"}, 1},
		{[]string{"python", "nlp"}, []string{"python"}, 0.5},
		{[]string{"Python ", "NLP"}, []string{"python", "nlp"}, 1},
		{[]string{"a", "b", "c"}, []string{"c", "d"}, 0.25},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, Jaccard(tc.a, tc.b), 1e-9, "%v vs %v", tc.a, tc.b)
	}
}

func TestJaccardBoundsRandom(t *testing.T) {
	pool := []string{"go", "python", "nlp", "react", "sql", "k8s"}
	rng := rand.New(rand.NewSource(42))
	pick := func() []string {
		var out []string
		for _, s := range pool {
			if rng.Intn(2) == 0 {
				out = append(out, s)
			}
		}
		return out
	}
	for i := 0; i < 500; i++ {
		a, b := pick(), pick()
		j := Jaccard(a, b)
		require.GreaterOrEqual(t, j, 0.0)
		require.LessOrEqual(t, j, 1.0)
		sa, sb := model.SkillSet(a), model.SkillSet(b)
		identical := len(sa) == len(sb) && len(sa) > 0
		for s := range sa {
			if _, ok := sb[s]; !ok {
				identical = false
			}
		}
		if j == 1 {
			require.True(t, identical, "skill 1 for %v vs %v", a, b)
		} else {
			require.False(t, identical, "identical sets must score 1: %v vs %v", a, b)
		}
	}
}

func TestRankSkillDominatesReputation(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	opp := model.Opportunity{ID: "m1", RequiredSkills: []string{"python", "nlp"}}
	cands := []model.CandidateProfile{
		{ID: "B", Skills: []string{"react"}, Reputation: rep(1), LastActive: &now},
		{ID: "A", Skills: []string{"python", "nlp"}, Reputation: rep(0), LastActive: &now},
	}
	ranked := defaultEngine().Rank(opp, cands, nil)
	require.Len(t, ranked, 2)
	assert.Equal(t, "A", ranked[0].Candidate.ID)
	assert.Equal(t, 1.0, ranked[0].Score.Skill)
	assert.Equal(t, 0.0, ranked[1].Score.Skill)
	assert.Greater(t, ranked[0].Score.Match, ranked[1].Score.Match)
}

func TestRankTieBreaks(t *testing.T) {
	opp := model.Opportunity{ID: "m1", RequiredSkills: []string{"go"}}
	cands := []model.CandidateProfile{
		{ID: "c3", Skills: []string{"go"}, Reputation: rep(0.5)},
		{ID: "c1", Skills: []string{"go"}, Reputation: rep(0.5)},
		{ID: "c2", Skills: []string{"go"}, Reputation: rep(0.5)},
	}
	e := NewEngine(Weights{Skill: 1}, 5, model.DefaultReputation)
	ranked := e.Rank(opp, cands, nil)
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids(ranked))

	// reputation breaks a match tie before the id does
	cands[0].Reputation = rep(0.9)
	ranked = e.Rank(opp, cands, nil)
	assert.Equal(t, []string{"c3", "c1", "c2"}, ids(ranked))
}

func TestRecencyScores(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1, t2, t3 := base, base.Add(time.Hour), base.Add(2*time.Hour)
	got := RecencyScores([]model.CandidateProfile{
		{ID: "old", LastActive: &t1},
		{ID: "mid", LastActive: &t2},
		{ID: "new", LastActive: &t3},
	})
	assert.InDelta(t, 0, got["old"], 1e-9)
	assert.InDelta(t, 0.5, got["mid"], 1e-9)
	assert.InDelta(t, 1, got["new"], 1e-9)

	same := RecencyScores([]model.CandidateProfile{{ID: "a", LastActive: &t1}, {ID: "b", LastActive: &t1}})
	assert.Equal(t, 1.0, same["a"])
	assert.Equal(t, 1.0, same["b"])

	none := RecencyScores([]model.CandidateProfile{{ID: "a"}, {ID: "b", LastActive: &t2}})
	assert.Equal(t, 0.0, none["a"])
	assert.Equal(t, 1.0, none["b"])
}

func TestWorkloadPenalty(t *testing.T) {
	e := defaultEngine()
	assert.Equal(t, 0.0, e.WorkloadPenalty(0))
	assert.InDelta(t, 0.4, e.WorkloadPenalty(2), 1e-9)
	assert.Equal(t, 1.0, e.WorkloadPenalty(5))
	assert.Equal(t, 1.0, e.WorkloadPenalty(12))

	opp := model.Opportunity{RequiredSkills: []string{"go"}}
	cands := []model.CandidateProfile{
		{ID: "busy", Skills: []string{"go"}, Workload: 1},
		{ID: "free", Skills: []string{"go"}},
	}
	ranked := e.Rank(opp, cands, map[string]int{"busy": 2})
	assert.Equal(t, "free", ranked[0].Candidate.ID)
	assert.Equal(t, 3, ranked[1].Open)
	assert.InDelta(t, 0.6, ranked[1].Score.WorkloadPen, 1e-9)
}

func TestScoreIsDeterministic(t *testing.T) {
	e := defaultEngine()
	opp := model.Opportunity{RequiredSkills: []string{"go", "sql"}}
	c := model.CandidateProfile{ID: "c", Skills: []string{"go"}, Reputation: rep(0.8)}
	a := e.Score(opp, c, 0.3, 0.2)
	b := e.Score(opp, c, 0.3, 0.2)
	assert.Equal(t, a, b)
	assert.InDelta(t, 0.5*0.5+0.2*0.8+0.2*0.3-0.2*0.2, a.Match, 1e-9)
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, Weights{Skill: 0.5, Reputation: 0.2, Recency: 0.2, Workload: 0.2}.Validate())
	assert.Error(t, Weights{Skill: -1}.Validate())
	assert.Error(t, Weights{Workload: 1}.Validate())
}

func ids(r []Ranked) []string {
	out := make([]string, len(r))
	for i, x := range r {
		out[i] = x.Candidate.ID
	}
	return out
}
