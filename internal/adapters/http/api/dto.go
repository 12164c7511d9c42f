package api

import (
	"fmt"
	"math"

	"github.com/okian/growth/internal/adapters/assets"
	"github.com/okian/growth/internal/domain/gating"
	"github.com/okian/growth/internal/domain/model"
)

// Level and range vectors travel as integer arrays; encoding/json would turn
// a []uint8 into base64.

type organizationRequest struct {
	Name       string      `json:"name"`
	Mint       string      `json:"mint,omitempty"`
	MinReviews int         `json:"min_reviews"`
	Weights    []float64   `json:"weights"`
	Ranges     []int       `json:"ranges"`
	Levels     [][]float64 `json:"levels"`
	Domain     string      `json:"domain"`
	LevelWait  int32       `json:"level_wait"`
}

type registryResponse struct {
	Address    string      `json:"address,omitempty"`
	Name       string      `json:"name"`
	MinReviews int         `json:"min_reviews"`
	Weights    []float64   `json:"weights"`
	Ranges     []int       `json:"ranges"`
	Levels     [][]float64 `json:"levels"`
	Mint       string      `json:"mint"`
	Authority  string      `json:"authority"`
	Domain     string      `json:"domain"`
	LevelWait  int32       `json:"level_wait"`
}

func newRegistryResponse(addr model.Key, reg *model.Registry) registryResponse {
	return registryResponse{
		Address:    addr.String(),
		Name:       reg.Name,
		MinReviews: int(reg.MinReviews),
		Weights:    reg.Weights,
		Ranges:     ints(reg.Ranges),
		Levels:     reg.Levels,
		Mint:       reg.Mint.String(),
		Authority:  reg.Authority.String(),
		Domain:     reg.Domain,
		LevelWait:  reg.LevelWait,
	}
}

type applicantRequest struct {
	Org        string `json:"org"`
	Applicant  string `json:"applicant"`
	Name       string `json:"name"`
	Levels     []int  `json:"levels"`
	LastUpdate int64  `json:"last_update"`
}

type scoreResponse struct {
	Address         string    `json:"address"`
	Name            string    `json:"name"`
	Applicant       string    `json:"applicant"`
	Mint            string    `json:"mint"`
	Scores          []float64 `json:"scores"`
	ScoresSum       []float64 `json:"scores_sum"`
	ReviewsReceived []uint16  `json:"reviews_received"`
	ReviewsSent     uint16    `json:"reviews_sent"`
	Levels          []int     `json:"levels"`
	LastUpdate      int64     `json:"last_update"`
	Created         bool      `json:"created,omitempty"`
}

func newScoreResponse(addr model.Key, rec *model.ScoreRecord) scoreResponse {
	return scoreResponse{
		Address:         addr.String(),
		Name:            rec.Name,
		Applicant:       rec.Applicant.String(),
		Mint:            rec.Mint.String(),
		Scores:          rec.Scores,
		ScoresSum:       rec.ScoresSum,
		ReviewsReceived: rec.ReviewsReceived,
		ReviewsSent:     rec.ReviewsSent,
		Levels:          ints(rec.Levels),
		LastUpdate:      rec.LastUpdate,
	}
}

type reviewRequest struct {
	ID        string    `json:"id"`
	Org       string    `json:"org"`
	Applicant string    `json:"applicant"`
	Scores    []float64 `json:"scores"`
	Timestamp int64     `json:"timestamp,omitempty"`
	// Sync applies the review inline and returns the outcome.
	Sync bool `json:"sync,omitempty"`
}

type ackResponse struct {
	Status    string `json:"status"`
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

type targetRequest struct {
	Org       string `json:"org"`
	Applicant string `json:"applicant"`
}

type overrideRequest struct {
	Org             string    `json:"org"`
	Applicant       string    `json:"applicant"`
	ScoresSum       []float64 `json:"scores_sum"`
	ReviewsReceived []uint16  `json:"reviews_received"`
	LastUpdate      int64     `json:"last_update"`
	Levels          []int     `json:"levels"`
	OverrideLevels  bool      `json:"override_levels"`
}

type outcomeResponse struct {
	Timestamp int64     `json:"timestamp"`
	Scores    []float64 `json:"scores"`
	Candidate []int     `json:"candidate"`
	Previous  []int     `json:"previous"`
	Levels    []int     `json:"levels"`
	Committed bool      `json:"committed"`
	Published bool      `json:"published"`
	URI       string    `json:"uri,omitempty"`
	Reason    string    `json:"reason"`
}

func newOutcomeResponse(o gating.Outcome) outcomeResponse {
	return outcomeResponse{
		Timestamp: o.Timestamp,
		Scores:    o.Scores,
		Candidate: ints(o.Candidate),
		Previous:  ints(o.Previous),
		Levels:    ints(o.Levels),
		Committed: o.Committed,
		Published: o.Published,
		URI:       o.URI,
		Reason:    o.Reason,
	}
}

type badgeResponse struct {
	Mint       string `json:"mint"`
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
	URI        string `json:"uri"`
	Collection string `json:"collection"`
	Verified   bool   `json:"verified"`
}

func newBadgeResponse(md assets.Metadata) badgeResponse {
	return badgeResponse{
		Mint:       md.Mint.String(),
		Name:       md.Name,
		Symbol:     md.Symbol,
		URI:        md.URI,
		Collection: md.Collection.String(),
		Verified:   md.Verified,
	}
}

type depositRequest struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

type balanceResponse struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
}

func ints(v []uint8) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}

func bytesOf(field string, v []int) ([]uint8, error) {
	out := make([]uint8, len(v))
	for i, x := range v {
		if x < 0 || x > math.MaxUint8 {
			return nil, fmt.Errorf("%w: %s[%d]=%d out of range", ErrBadRequest, field, i, x)
		}
		out[i] = uint8(x)
	}
	return out, nil
}
