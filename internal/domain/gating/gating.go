// Package gating decides when a reconciled level vector may be committed and
// republishes the applicant's badge when it is.
package gating

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/okian/growth/internal/domain/engine"
	"github.com/okian/growth/internal/domain/model"
	"github.com/okian/growth/pkg/logger"
	"github.com/okian/growth/pkg/metrics"
)

// Commit paths, used as metric labels.
const (
	PathSubmit   = "submit"
	PathOverride = "override"
)

// Reasons reported in Outcome.Reason.
const (
	ReasonUnchanged = "unchanged"
	ReasonCooldown  = "cooldown"
	ReasonQuorum    = "quorum"
	ReasonCommitted = "committed"
	ReasonOverride  = "override"
)

// Publisher is the part of the asset registry the protocol drives.
type Publisher interface {
	IsCollectionVerified(ctx context.Context, mint model.Key) (bool, error)
	UpdateMetadata(ctx context.Context, mint model.Key, uri string) error
}

// Clock supplies submission timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Outcome describes what a single call did to the record.
type Outcome struct {
	Timestamp int64     `json:"timestamp"`
	Scores    []float64 `json:"scores"`
	Candidate []uint8   `json:"candidate"`
	Previous  []uint8   `json:"previous"`
	Levels    []uint8   `json:"levels"`
	Committed bool      `json:"committed"`
	Published bool      `json:"published"`
	URI       string    `json:"uri,omitempty"`
	Reason    string    `json:"reason"`
}

// LevelChanged reports whether the committed vector moved.
func (o Outcome) LevelChanged() bool {
	return o.Committed && !slices.Equal(o.Previous, o.Levels)
}

// OverrideInput carries the replacement state for an administrative override.
type OverrideInput struct {
	ScoresSum       []float64 `json:"scores_sum"`
	ReviewsReceived []uint16  `json:"reviews_received"`
	LastUpdate      int64     `json:"last_update"`
	Levels          []uint8   `json:"levels"`
	OverrideLevels  bool      `json:"override_levels"`
}

// Protocol wraps the reconciliation engine with commit policy and badge
// publication.
type Protocol struct {
	publisher Publisher
	clock     Clock
	logger    logger.Logger
}

// New creates a Protocol publishing through pub.
func New(pub Publisher, opts ...Option) *Protocol {
	p := &Protocol{
		publisher: pub,
		clock:     SystemClock{},
		logger:    logger.Get().Named("gating"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BadgeURI renders the metadata location for a level vector under domain.
func BadgeURI(domain string, levels []uint8) string {
	return domain + "/" + model.LevelString(levels) + ".json"
}

// Timestamp resolves the submission time: override when non-zero, else the clock.
func (p *Protocol) Timestamp(override int64) int64 {
	if override != 0 {
		return override
	}
	return p.clock.Now().Unix()
}

// Submit folds one review into rec and commits the reconciled candidate when
// the cooldown has elapsed and the quorum is met. rec is mutated in place; a
// shape or counter overflow error leaves it untouched, later errors leave it
// for the caller's transaction to discard.
func (p *Protocol) Submit(ctx context.Context, reg *model.Registry, rec *model.ScoreRecord, scores []float64, tsOverride int64) (Outcome, error) {
	if len(scores) != reg.Criteria() {
		return Outcome{}, fmt.Errorf("%w: %d scores for %d criteria", model.ErrShapeMismatch, len(scores), reg.Criteria())
	}
	if err := rec.CheckShape(reg); err != nil {
		return Outcome{}, err
	}

	for i, s := range scores {
		if s != 0 && rec.ReviewsReceived[i] == math.MaxUint16 {
			return Outcome{}, fmt.Errorf("%w: reviews_received[%d]", model.ErrCounterOverflow, i)
		}
	}

	start := time.Now()
	ts := p.Timestamp(tsOverride)

	for i, s := range scores {
		rec.ScoresSum[i] += s
		if s != 0 {
			rec.ReviewsReceived[i]++
		}
	}

	res := engine.Reconcile(reg, rec)
	rec.Scores = res.Scores
	metrics.RecordReconcileLatency(float64(time.Since(start).Microseconds()) / 1000)

	out := Outcome{
		Timestamp: ts,
		Scores:    res.Scores,
		Candidate: res.Candidate,
		Previous:  slices.Clone(rec.Levels),
	}

	switch {
	case !res.Changed(rec.Levels):
		rec.LastUpdate = ts
		out.Reason = ReasonUnchanged
	case rec.LastUpdate+int64(reg.LevelWait) >= ts:
		out.Reason = ReasonCooldown
	case int(rec.MaxReviews()) < int(reg.MinReviews):
		out.Reason = ReasonQuorum
	default:
		rec.Levels = res.Candidate
		rec.LastUpdate = ts
		out.Committed = true
		out.Reason = ReasonCommitted
	}
	out.Levels = slices.Clone(rec.Levels)

	if !out.Committed {
		if out.Reason != ReasonUnchanged {
			metrics.RecordGatingRejection(out.Reason)
			p.logger.Debug(ctx, "candidate discarded",
				logger.String("applicant", rec.Applicant.String()),
				logger.String("reason", out.Reason),
				logger.String("candidate", model.LevelString(res.Candidate)),
				logger.Int64("last_update", rec.LastUpdate),
				logger.Int64("ts", ts),
			)
		}
		return out, nil
	}

	metrics.RecordLevelCommit(PathSubmit)
	p.logger.Info(ctx, "level committed",
		logger.String("applicant", rec.Applicant.String()),
		logger.String("from", model.LevelString(out.Previous)),
		logger.String("to", model.LevelString(out.Levels)),
	)

	verified, err := p.publisher.IsCollectionVerified(ctx, rec.Mint)
	if err != nil {
		metrics.RecordPublication("failed")
		return out, fmt.Errorf("check badge verification: %w", err)
	}
	if !verified {
		metrics.RecordPublication("unverified")
		return out, nil
	}
	if err := p.publish(ctx, reg, rec, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Override replaces the accumulators of rec, commits the reconciled candidate
// unconditionally and republishes. With OverrideLevels the committed vector is
// then replaced by in.Levels. Only the organization authority may call it.
func (p *Protocol) Override(ctx context.Context, reg *model.Registry, rec *model.ScoreRecord, caller model.Key, in OverrideInput) (Outcome, error) {
	w, g := reg.Criteria(), reg.Groups()
	switch {
	case len(in.ScoresSum) != w:
		return Outcome{}, fmt.Errorf("%w: scores_sum has %d entries, want %d", model.ErrShapeMismatch, len(in.ScoresSum), w)
	case len(in.ReviewsReceived) != w:
		return Outcome{}, fmt.Errorf("%w: reviews_received has %d entries, want %d", model.ErrShapeMismatch, len(in.ReviewsReceived), w)
	case len(in.Levels) != g:
		return Outcome{}, fmt.Errorf("%w: levels has %d entries, want %d", model.ErrShapeMismatch, len(in.Levels), g)
	}
	if err := reg.Authorize(caller); err != nil {
		return Outcome{}, err
	}
	if err := rec.CheckShape(reg); err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Timestamp: in.LastUpdate,
		Previous:  slices.Clone(rec.Levels),
		Committed: true,
		Reason:    ReasonOverride,
	}

	rec.ScoresSum = slices.Clone(in.ScoresSum)
	rec.ReviewsReceived = slices.Clone(in.ReviewsReceived)
	res := engine.Reconcile(reg, rec)
	rec.Scores = res.Scores
	rec.Levels = res.Candidate
	rec.LastUpdate = in.LastUpdate
	if in.OverrideLevels {
		rec.Levels = slices.Clone(in.Levels)
	}

	out.Scores = res.Scores
	out.Candidate = res.Candidate
	out.Levels = slices.Clone(rec.Levels)

	metrics.RecordLevelCommit(PathOverride)
	p.logger.Info(ctx, "levels overridden",
		logger.String("applicant", rec.Applicant.String()),
		logger.String("from", model.LevelString(out.Previous)),
		logger.String("to", model.LevelString(out.Levels)),
		logger.Bool("override_levels", in.OverrideLevels),
	)

	if err := p.publish(ctx, reg, rec, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (p *Protocol) publish(ctx context.Context, reg *model.Registry, rec *model.ScoreRecord, out *Outcome) error {
	uri := BadgeURI(reg.Domain, rec.Levels)
	if err := p.publisher.UpdateMetadata(ctx, rec.Mint, uri); err != nil {
		metrics.RecordPublication("failed")
		p.logger.Error(ctx, "badge publication failed",
			logger.String("mint", rec.Mint.String()),
			logger.Error(err),
		)
		return fmt.Errorf("publish badge metadata: %w", err)
	}
	metrics.RecordPublication("published")
	out.Published = true
	out.URI = uri
	return nil
}
