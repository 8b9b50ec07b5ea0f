// Package fairness turns a need index into per-group quota targets and
// reports how many assignments each group received over a rolling window.
package fairness

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidShares is returned for quota caps outside [0,1] or min > max.
var ErrInvalidShares = errors.New("invalid quota shares")

const bisectIterations = 200

// ValidateShares checks the quota caps. It is meant to run at startup.
func ValidateShares(minShare, maxShare float64) error {
	if math.IsNaN(minShare) || math.IsNaN(maxShare) {
		return fmt.Errorf("%w: NaN", ErrInvalidShares)
	}
	if minShare < 0 || maxShare > 1 || maxShare <= 0 {
		return fmt.Errorf("%w: min_share %.3f and max_share %.3f must be within [0,1] with a positive max", ErrInvalidShares, minShare, maxShare)
	}
	if minShare > maxShare {
		return fmt.Errorf("%w: min_share %.3f > max_share %.3f", ErrInvalidShares, minShare, maxShare)
	}
	return nil
}

// ValidateNeedIndex rejects non-positive weights.
func ValidateNeedIndex(need map[string]float64) error {
	for g, w := range need {
		if !(w > 0) || math.IsInf(w, 0) {
			return fmt.Errorf("need index for %q must be a positive number, got %v", g, w)
		}
	}
	return nil
}

// Shares returns the normalised quota share of every group that has at least
// one candidate. Weights come from need, or 1.0 for groups it does not list.
// Shares are clamped into [minShare, maxShare] and still sum to 1. When the
// caps cannot be met for the number of groups present the shares fall back
// to an equal split.
func Shares(groups map[string]int, need map[string]float64, minShare, maxShare float64) (map[string]float64, error) {
	if err := ValidateShares(minShare, maxShare); err != nil {
		return nil, err
	}
	names := presentGroups(groups)
	out := make(map[string]float64, len(names))
	if len(names) == 0 {
		return out, nil
	}

	w := make([]float64, len(names))
	for i, g := range names {
		w[i] = 1
		if v, ok := need[g]; ok {
			if !(v > 0) {
				return nil, fmt.Errorf("need index for %q must be positive, got %v", g, v)
			}
			w[i] = v
		}
	}
	floats.Scale(1/floats.Sum(w), w)

	n := float64(len(names))
	if n*minShare > 1 || n*maxShare < 1 {
		for _, g := range names {
			out[g] = 1 / n
		}
		return out, nil
	}

	shares := clampToUnit(w, minShare, maxShare)
	for i, g := range names {
		out[g] = shares[i]
	}
	return out, nil
}

// clampToUnit finds the scale factor lambda for which the clamped weights
// clamp(lambda*w, lo, hi) sum to one. The clamped sum is monotone in lambda
// so a bisection converges.
func clampToUnit(w []float64, lo, hi float64) []float64 {
	out := make([]float64, len(w))
	eval := func(lambda float64) float64 {
		for i, v := range w {
			out[i] = math.Min(hi, math.Max(lo, lambda*v))
		}
		return floats.Sum(out)
	}
	minW := floats.Min(w)
	low, high := 0.0, hi/minW
	if eval(1) == 1 {
		return out
	}
	for i := 0; i < bisectIterations; i++ {
		mid := (low + high) / 2
		if eval(mid) < 1 {
			low = mid
		} else {
			high = mid
		}
	}
	eval(high)
	// Spread the residual rounding error over groups that are not pinned.
	if s := floats.Sum(out); s != 1 {
		var free []int
		for i, v := range out {
			if v > lo && v < hi {
				free = append(free, i)
			}
		}
		if len(free) > 0 {
			d := (1 - s) / float64(len(free))
			for _, i := range free {
				out[i] = math.Min(hi, math.Max(lo, out[i]+d))
			}
		}
	}
	return out
}

// ComputeTargets returns the integer quota per group for totalSlots seats.
// Every group listed in groups or need appears in the result; groups without
// candidates get 0.
func ComputeTargets(groups map[string]int, need map[string]float64, totalSlots int, minShare, maxShare float64) (map[string]int, error) {
	if totalSlots < 0 {
		return nil, fmt.Errorf("total slots must not be negative, got %d", totalSlots)
	}
	shares, err := Shares(groups, need, minShare, maxShare)
	if err != nil {
		return nil, err
	}
	targets := make(map[string]int, len(groups)+len(need))
	for g := range groups {
		targets[g] = 0
	}
	for g := range need {
		targets[g] = 0
	}
	for g, s := range shares {
		targets[g] = int(math.Round(float64(totalSlots) * s))
	}
	return targets, nil
}

func presentGroups(groups map[string]int) []string {
	names := make([]string, 0, len(groups))
	for g, n := range groups {
		if n > 0 {
			names = append(names, g)
		}
	}
	sort.Strings(names)
	return names
}
