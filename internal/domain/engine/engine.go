// Package engine turns accumulated review scores into level vectors.
//
// Every function here is pure: it reads a Registry and a ScoreRecord and
// returns new values without touching either argument.
package engine

import (
	"slices"

	"github.com/okian/growth/internal/domain/model"
)

// GroupScores computes the weighted average of each criterion group.
//
// Only criteria with at least one review contribute. A group in which no
// criterion has been reviewed (or whose reviewed weights sum to zero) averages
// to 0 rather than producing NaN.
func GroupScores(reg *model.Registry, rec *model.ScoreRecord) []float64 {
	scores := make([]float64, reg.Groups())
	for g := range scores {
		start, end := reg.GroupBounds(g)
		var weighted, total float64
		for i := start; i < end; i++ {
			n := rec.ReviewsReceived[i]
			if n == 0 {
				continue
			}
			weighted += rec.ScoresSum[i] * reg.Weights[i] / float64(n)
			total += reg.Weights[i]
		}
		if total != 0 {
			scores[g] = weighted / total
		}
	}
	return scores
}

// PotentialLevels counts, per group, how many thresholds of the group's
// ladder the score strictly exceeds. Scanning stops at the first threshold
// not passed; ladders are ascending by construction.
func PotentialLevels(reg *model.Registry, scores []float64) []uint8 {
	potential := make([]uint8, len(scores))
	for g, score := range scores {
		var level uint8
		for _, threshold := range reg.Levels[g] {
			if !(threshold < score) {
				break
			}
			level++
		}
		potential[g] = level
	}
	return potential
}

// NextLevels moves the first group whose level differs from its potential by
// exactly one step toward it. All other groups are left unchanged.
func NextLevels(current, potential []uint8) []uint8 {
	next := slices.Clone(current)
	for g, level := range current {
		switch {
		case level < potential[g]:
			next[g]++
			return next
		case level > potential[g]:
			next[g]--
			return next
		}
	}
	return next
}

// Result is the outcome of one reconciliation.
type Result struct {
	Scores    []float64
	Potential []uint8
	Candidate []uint8
}

// Changed reports whether the candidate differs from current.
func (r Result) Changed(current []uint8) bool {
	return !slices.Equal(r.Candidate, current)
}

// Reconcile runs group averaging, potential levels and one-step hysteresis in
// sequence. The candidate is not committed.
func Reconcile(reg *model.Registry, rec *model.ScoreRecord) Result {
	scores := GroupScores(reg, rec)
	potential := PotentialLevels(reg, scores)
	return Result{
		Scores:    scores,
		Potential: potential,
		Candidate: NextLevels(rec.Levels, potential),
	}
}
