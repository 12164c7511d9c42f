package model

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ScoreRecord is the mutable state of one applicant within one organization.
type ScoreRecord struct {
	Name            string    `json:"name"`
	Scores          []float64 `json:"scores"`
	ScoresSum       []float64 `json:"scores_sum"`
	Applicant       Key       `json:"applicant"`
	Mint            Key       `json:"mint"`
	ReviewsReceived []uint16  `json:"reviews_received"`
	ReviewsSent     uint16    `json:"reviews_sent"`
	Levels          []uint8   `json:"levels"`
	LastUpdate      int64     `json:"last_update"`
}

// NewScoreRecord builds a zeroed record shaped for reg with the supplied
// starting levels.
func NewScoreRecord(reg *Registry, applicant, mint Key, name string, levels []uint8, lastUpdate int64) (*ScoreRecord, error) {
	if len(levels) != reg.Groups() {
		return nil, fmt.Errorf("%w: %d starting levels for %d groups", ErrShapeMismatch, len(levels), reg.Groups())
	}
	return &ScoreRecord{
		Name:            name,
		Scores:          make([]float64, reg.Groups()),
		ScoresSum:       make([]float64, reg.Criteria()),
		Applicant:       applicant,
		Mint:            mint,
		ReviewsReceived: make([]uint16, reg.Criteria()),
		Levels:          slices.Clone(levels),
		LastUpdate:      lastUpdate,
	}, nil
}

// CheckShape verifies the vector lengths against reg.
func (s *ScoreRecord) CheckShape(reg *Registry) error {
	w, g := reg.Criteria(), reg.Groups()
	switch {
	case len(s.ScoresSum) != w:
		return fmt.Errorf("%w: scores_sum has %d entries, want %d", ErrShapeMismatch, len(s.ScoresSum), w)
	case len(s.ReviewsReceived) != w:
		return fmt.Errorf("%w: reviews_received has %d entries, want %d", ErrShapeMismatch, len(s.ReviewsReceived), w)
	case len(s.Levels) != g:
		return fmt.Errorf("%w: levels has %d entries, want %d", ErrShapeMismatch, len(s.Levels), g)
	case len(s.Scores) != g:
		return fmt.Errorf("%w: scores has %d entries, want %d", ErrShapeMismatch, len(s.Scores), g)
	}
	return nil
}

// MaxReviews is the highest per-criterion review count.
func (s *ScoreRecord) MaxReviews() uint16 {
	if len(s.ReviewsReceived) == 0 {
		return 0
	}
	return slices.Max(s.ReviewsReceived)
}

// Clone returns a deep copy.
func (s *ScoreRecord) Clone() *ScoreRecord {
	c := *s
	c.Scores = slices.Clone(s.Scores)
	c.ScoresSum = slices.Clone(s.ScoresSum)
	c.ReviewsReceived = slices.Clone(s.ReviewsReceived)
	c.Levels = slices.Clone(s.Levels)
	return &c
}

// LevelString renders levels hyphen-joined, e.g. "2-0-1".
func LevelString(levels []uint8) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = strconv.Itoa(int(l))
	}
	return strings.Join(parts, "-")
}
