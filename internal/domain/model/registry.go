// Package model holds the persisted records of the leveling engine: the
// per-organization Registry and the per-applicant ScoreRecord.
package model

import (
	"fmt"
	"math"
	"time"
)

const maxLadderLen = math.MaxUint8

// Registry is the configuration of one organization. Everything except its
// storage footprint is fixed at creation.
type Registry struct {
	Name       string      `json:"name"`
	MinReviews uint8       `json:"min_reviews"`
	Weights    []float64   `json:"weights"`
	Ranges     []uint8     `json:"ranges"`
	Levels     [][]float64 `json:"levels"`
	Mint       Key         `json:"mint"`
	Authority  Key         `json:"authority"`
	Domain     string      `json:"domain"`
	LevelWait  int32       `json:"level_wait"`
}

// Criteria is the number of rubric criteria (W).
func (r *Registry) Criteria() int { return len(r.Weights) }

// Groups is the number of criterion groups (G).
func (r *Registry) Groups() int { return len(r.Ranges) + 1 }

// Cooldown returns LevelWait as a duration.
func (r *Registry) Cooldown() time.Duration {
	return time.Duration(r.LevelWait) * time.Second
}

// GroupBounds returns the half-open criterion index range [start, end) of group g.
func (r *Registry) GroupBounds(g int) (start, end int) {
	if g > 0 {
		start = int(r.Ranges[g-1])
	}
	end = len(r.Weights)
	if g < len(r.Ranges) {
		end = int(r.Ranges[g])
	}
	return start, end
}

// Authorize reports whether caller is the organization authority.
func (r *Registry) Authorize(caller Key) error {
	if caller != r.Authority {
		return ErrUnauthorized
	}
	return nil
}

// Validate checks the creation invariants. It never mutates r.
func (r *Registry) Validate() error {
	if len(r.Ranges)+1 != len(r.Levels) {
		return fmt.Errorf("%w: %d ranges need %d level ladders, got %d",
			ErrShapeMismatch, len(r.Ranges), len(r.Ranges)+1, len(r.Levels))
	}
	w := len(r.Weights)
	if w == 0 {
		return fmt.Errorf("%w: rubric has no criteria", ErrInvalidRegistry)
	}
	for i, wt := range r.Weights {
		if math.IsNaN(wt) || math.IsInf(wt, 0) || wt < 0 {
			return fmt.Errorf("%w: weight %d is %v", ErrInvalidRegistry, i, wt)
		}
	}
	prev := 0
	for i, b := range r.Ranges {
		if int(b) <= prev || int(b) > w-1 {
			return fmt.Errorf("%w: range %d (%d) must be ascending within [1, %d]", ErrInvalidRegistry, i, b, w-1)
		}
		prev = int(b)
	}
	for g, ladder := range r.Levels {
		if len(ladder) > maxLadderLen {
			return fmt.Errorf("%w: ladder %d has %d thresholds", ErrInvalidRegistry, g, len(ladder))
		}
		for i, th := range ladder {
			if math.IsNaN(th) {
				return fmt.Errorf("%w: ladder %d threshold %d is NaN", ErrInvalidRegistry, g, i)
			}
			if i > 0 && th <= ladder[i-1] {
				return fmt.Errorf("%w: ladder %d is not strictly ascending", ErrInvalidRegistry, g)
			}
		}
	}
	return nil
}

// ThresholdCount is the total number of thresholds across every ladder.
func (r *Registry) ThresholdCount() int {
	n := 0
	for _, l := range r.Levels {
		n += len(l)
	}
	return n
}
