package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/growth/internal/domain/engine"
	"github.com/okian/growth/internal/domain/model"
	"github.com/okian/growth/pkg/logger"
	"github.com/okian/growth/pkg/metrics"
)

const sweepID = "sweep"

type scoreAccount struct {
	addr model.Key
	rec  *model.ScoreRecord
}

type scoreRef struct {
	org       model.Key
	applicant model.Key
	criteria  int
}

// Sweep resubmits an empty review for every applicant whose reconciled
// candidate differs from its committed levels, so that candidates held back
// by the cooldown are committed once it has elapsed. Settled records are left
// alone; their last_update only moves when a review arrives. It returns the
// number of records whose levels moved.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	refs := s.scoreRefs(ctx)
	changed := 0
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		out, err := s.receive(ctx, model.Submission{
			ID:        sweepID,
			Org:       ref.org,
			Applicant: ref.applicant,
			Scores:    make([]float64, ref.criteria),
		}, true)
		if errors.Is(err, errSettled) {
			continue
		}
		if err != nil {
			return changed, fmt.Errorf("sweep: %w", err)
		}
		if out.LevelChanged() {
			changed++
		}
	}
	metrics.RecordSweep(len(refs))
	return changed, nil
}

func (s *Service) runSweep(ctx context.Context) {
	start := time.Now()
	changed, err := s.Sweep(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("sweep", errorKind(err))
		s.logger.Error(ctx, "reconcile sweep failed", logger.Error(err))
		return
	}
	s.logger.Info(ctx, "reconcile sweep finished",
		logger.Int("changed", changed),
		logger.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

// scoreRefs pairs every ScoreRecord holding a pending candidate with its
// organization. Record addresses are derived, so each one is matched against
// the candidates produced by every known registry.
func (s *Service) scoreRefs(ctx context.Context) []scoreRef {
	type orgInfo struct {
		addr model.Key
		reg  *model.Registry
	}
	var (
		orgs   []orgInfo
		scores []scoreAccount
	)
	for _, acc := range s.ledger.Accounts(ctx) {
		switch model.KindOf(acc.Data) {
		case model.KindRegistry:
			reg, err := model.DecodeRegistry(acc.Data)
			if err != nil {
				s.logger.Warn(ctx, "skipping unreadable registry", logger.String("address", acc.Address.String()), logger.Error(err))
				continue
			}
			orgs = append(orgs, orgInfo{addr: acc.Address, reg: reg})
		case model.KindScore:
			rec, err := model.DecodeScore(acc.Data)
			if err != nil {
				s.logger.Warn(ctx, "skipping unreadable score record", logger.String("address", acc.Address.String()), logger.Error(err))
				continue
			}
			scores = append(scores, scoreAccount{addr: acc.Address, rec: rec})
		}
	}

	refs := make([]scoreRef, 0, len(scores))
	for _, sc := range scores {
		for _, o := range orgs {
			if model.ScoreAddress(o.addr, sc.rec.Applicant) != sc.addr {
				continue
			}
			if err := sc.rec.CheckShape(o.reg); err != nil {
				s.logger.Warn(ctx, "skipping malformed score record", logger.String("address", sc.addr.String()), logger.Error(err))
				break
			}
			if engine.Reconcile(o.reg, sc.rec).Changed(sc.rec.Levels) {
				refs = append(refs, scoreRef{org: o.addr, applicant: sc.rec.Applicant, criteria: o.reg.Criteria()})
			}
			break
		}
	}
	return refs
}

// cronLogger routes scheduler output through the service logger.
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(context.Background(), msg, logger.Any("details", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(context.Background(), msg, logger.Error(err), logger.Any("details", keysAndValues))
}
