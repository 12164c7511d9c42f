package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/okian/growth/internal/adapters/assets"
	"github.com/okian/growth/internal/adapters/ledger"
	"github.com/okian/growth/internal/adapters/notify"
	"github.com/okian/growth/internal/domain/engine"
	"github.com/okian/growth/internal/domain/gating"
	"github.com/okian/growth/internal/domain/model"
	"github.com/okian/growth/pkg/logger"
)

// OrganizationInput describes a new organization. A nil Mint is assigned.
type OrganizationInput struct {
	Name       string
	Mint       model.Key
	MinReviews uint8
	Weights    []float64
	Ranges     []uint8
	Levels     [][]float64
	Domain     string
	LevelWait  int32
}

// ApplicantInput describes an applicant joining an organization.
type ApplicantInput struct {
	Applicant  model.Key
	Name       string
	Levels     []uint8
	LastUpdate int64
}

// Organization is a Registry together with its ledger address.
type Organization struct {
	Address  model.Key
	Registry *model.Registry
}

// Applicant is a ScoreRecord together with its ledger address.
type Applicant struct {
	Address model.Key
	Record  *model.ScoreRecord
	Created bool
}

// CreateOrganization validates and stores a new Registry owned by caller and
// registers the organization badge. The caller funds the record.
func (s *Service) CreateOrganization(ctx context.Context, caller model.Key, in OrganizationInput) (Organization, error) {
	reg := &model.Registry{
		Name:       in.Name,
		MinReviews: in.MinReviews,
		Weights:    in.Weights,
		Ranges:     in.Ranges,
		Levels:     in.Levels,
		Mint:       in.Mint,
		Authority:  caller,
		Domain:     in.Domain,
		LevelWait:  in.LevelWait,
	}
	if reg.Mint == model.NilKey {
		reg.Mint = model.NewKey()
	}
	if err := reg.Validate(); err != nil {
		return Organization{}, err
	}
	addr := model.RegistryAddress(reg.Mint, caller)

	_, err := s.ledger.RunInTransaction(ctx, func(tx ledger.Tx) error {
		if _, err := s.growth.Create(ctx, tx, addr, caller, model.RegistryBaseSize); err != nil {
			return err
		}
		if err := s.save(ctx, tx, addr, caller, model.EncodeRegistry(reg)); err != nil {
			return err
		}
		return s.assets.CreateMetadata(ctx, assets.Metadata{
			Mint:   reg.Mint,
			Name:   reg.Name + " Organization",
			Symbol: assets.SymbolOrganization,
			URI:    reg.Domain + "/org.json",
		})
	})
	if err != nil {
		return Organization{}, fmt.Errorf("create organization %q: %w", in.Name, err)
	}

	s.logger.Info(ctx, "organization created",
		logger.String("address", addr.String()),
		logger.String("name", reg.Name),
		logger.Int("criteria", reg.Criteria()),
		logger.Int("groups", reg.Groups()),
	)
	return Organization{Address: addr, Registry: reg}, nil
}

// Register creates the ScoreRecord of an applicant under org, or returns the
// existing one unchanged. Only the organization authority may register.
func (s *Service) Register(ctx context.Context, caller, org model.Key, in ApplicantInput) (Applicant, error) {
	addr := model.ScoreAddress(org, in.Applicant)
	var out Applicant

	_, err := s.ledger.RunInTransaction(ctx, func(tx ledger.Tx) error {
		reg, err := loadRegistry(tx, org)
		if err != nil {
			return err
		}
		if err := reg.Authorize(caller); err != nil {
			return err
		}
		if tx.Exists(addr) {
			rec, err := loadScore(tx, addr)
			if err != nil {
				return err
			}
			out = Applicant{Address: addr, Record: rec}
			return nil
		}

		rec, err := model.NewScoreRecord(reg, in.Applicant, model.BadgeMint(org, in.Applicant), in.Name, in.Levels, in.LastUpdate)
		if err != nil {
			return err
		}
		if _, err := s.growth.Create(ctx, tx, addr, caller, model.ScoreBaseSize); err != nil {
			return err
		}
		if err := s.save(ctx, tx, addr, caller, model.EncodeScore(rec)); err != nil {
			return err
		}
		if err := s.assets.CreateMetadata(ctx, assets.Metadata{
			Mint:       rec.Mint,
			Name:       reg.Name + " - " + rec.Name,
			Symbol:     assets.SymbolScore,
			URI:        gating.BadgeURI(reg.Domain, rec.Levels),
			Collection: reg.Mint,
		}); err != nil {
			return err
		}
		out = Applicant{Address: addr, Record: rec, Created: true}
		return nil
	})
	if err != nil {
		return Applicant{}, fmt.Errorf("register applicant %s: %w", in.Applicant, err)
	}

	if out.Created {
		s.logger.Info(ctx, "applicant registered",
			logger.String("org", org.String()),
			logger.String("applicant", in.Applicant.String()),
			logger.String("levels", model.LevelString(out.Record.Levels)),
		)
	}
	return out, nil
}

// ReceiveScore applies one review to the applicant's record. Anyone may
// submit; the timestamp override is honoured when non-zero.
func (s *Service) ReceiveScore(ctx context.Context, sub model.Submission) (gating.Outcome, error) {
	return s.receive(ctx, sub, false)
}

// receive runs one submission transaction. With pendingOnly the record is left
// alone unless its reconciled candidate differs from the committed levels, and
// errSettled is returned instead.
func (s *Service) receive(ctx context.Context, sub model.Submission, pendingOnly bool) (gating.Outcome, error) {
	addr := model.ScoreAddress(sub.Org, sub.Applicant)
	var (
		out  gating.Outcome
		mint model.Key
	)

	txCtx, j := withJournal(ctx)
	_, err := s.ledger.RunInTransaction(txCtx, func(tx ledger.Tx) error {
		reg, err := loadRegistry(tx, sub.Org)
		if err != nil {
			return err
		}
		rec, err := loadScore(tx, addr)
		if err != nil {
			return err
		}
		if pendingOnly && rec.CheckShape(reg) == nil && !engine.Reconcile(reg, rec).Changed(rec.Levels) {
			return errSettled
		}
		out, err = s.protocol.Submit(txCtx, reg, rec, sub.Scores, sub.Timestamp)
		if err != nil {
			return err
		}
		mint = rec.Mint
		return s.save(txCtx, tx, addr, reg.Authority, model.EncodeScore(rec))
	})
	if err != nil {
		if errors.Is(err, errSettled) {
			return gating.Outcome{}, err
		}
		return gating.Outcome{}, fmt.Errorf("receive score for %s: %w", sub.Applicant, errors.Join(err, s.revert(ctx, j)))
	}

	s.notifyChange(ctx, sub.Org, sub.Applicant, mint, gating.PathSubmit, out)
	return out, nil
}

// SendScore counts a review given by the applicant. Authority only.
func (s *Service) SendScore(ctx context.Context, caller, org, applicant model.Key) (uint16, error) {
	addr := model.ScoreAddress(org, applicant)
	var sent uint16

	_, err := s.ledger.RunInTransaction(ctx, func(tx ledger.Tx) error {
		reg, err := loadRegistry(tx, org)
		if err != nil {
			return err
		}
		if err := reg.Authorize(caller); err != nil {
			return err
		}
		rec, err := loadScore(tx, addr)
		if err != nil {
			return err
		}
		if rec.ReviewsSent == math.MaxUint16 {
			return ErrCounterOverflow
		}
		rec.ReviewsSent++
		sent = rec.ReviewsSent
		return s.save(ctx, tx, addr, caller, model.EncodeScore(rec))
	})
	if err != nil {
		return 0, fmt.Errorf("send score from %s: %w", applicant, err)
	}
	return sent, nil
}

// Verify marks the applicant badge as a verified member of the organization
// collection. Authority only; repeated calls are no-ops.
func (s *Service) Verify(ctx context.Context, caller, org, applicant model.Key) error {
	addr := model.ScoreAddress(org, applicant)
	_, err := s.ledger.RunInTransaction(ctx, func(tx ledger.Tx) error {
		reg, err := loadRegistry(tx, org)
		if err != nil {
			return err
		}
		if err := reg.Authorize(caller); err != nil {
			return err
		}
		rec, err := loadScore(tx, addr)
		if err != nil {
			return err
		}
		return s.assets.VerifyCollectionItem(ctx, rec.Mint, reg.Mint)
	})
	if err != nil {
		return fmt.Errorf("verify badge of %s: %w", applicant, err)
	}
	return nil
}

// UpdateScores replaces the accumulators of an applicant and commits the
// result unconditionally. Authority only.
func (s *Service) UpdateScores(ctx context.Context, caller, org, applicant model.Key, in gating.OverrideInput) (gating.Outcome, error) {
	addr := model.ScoreAddress(org, applicant)
	var (
		out  gating.Outcome
		mint model.Key
	)

	txCtx, j := withJournal(ctx)
	_, err := s.ledger.RunInTransaction(txCtx, func(tx ledger.Tx) error {
		reg, err := loadRegistry(tx, org)
		if err != nil {
			return err
		}
		rec, err := loadScore(tx, addr)
		if err != nil {
			return err
		}
		out, err = s.protocol.Override(txCtx, reg, rec, caller, in)
		if err != nil {
			return err
		}
		mint = rec.Mint
		return s.save(txCtx, tx, addr, caller, model.EncodeScore(rec))
	})
	if err != nil {
		return gating.Outcome{}, fmt.Errorf("update scores of %s: %w", applicant, errors.Join(err, s.revert(ctx, j)))
	}

	s.notifyChange(ctx, org, applicant, mint, gating.PathOverride, out)
	return out, nil
}

// Registry reads the organization stored at org.
func (s *Service) Registry(ctx context.Context, org model.Key) (*model.Registry, error) {
	acc, err := s.ledger.Get(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", org, err)
	}
	return model.DecodeRegistry(acc.Data)
}

// Score reads the record of applicant under org.
func (s *Service) Score(ctx context.Context, org, applicant model.Key) (*model.ScoreRecord, error) {
	addr := model.ScoreAddress(org, applicant)
	acc, err := s.ledger.Get(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", addr, err)
	}
	return model.DecodeScore(acc.Data)
}

// Badge returns the metadata of the applicant badge under org.
func (s *Service) Badge(ctx context.Context, org, applicant model.Key) (assets.Metadata, error) {
	return s.assets.Get(ctx, model.BadgeMint(org, applicant))
}

// save grows the record at addr to fit data, funded by payer, and writes it.
func (s *Service) save(ctx context.Context, tx ledger.Tx, addr, payer model.Key, data []byte) error {
	if _, err := s.growth.EnsureCapacity(ctx, tx, addr, payer, len(data)); err != nil {
		return err
	}
	return tx.Write(addr, data)
}

func (s *Service) notifyChange(ctx context.Context, org, applicant, mint model.Key, path string, out gating.Outcome) {
	if !out.LevelChanged() {
		return
	}
	s.notifier.LevelChanged(ctx, notify.Event{
		Org:       org,
		Applicant: applicant,
		Mint:      mint,
		From:      notify.Levels(out.Previous),
		To:        notify.Levels(out.Levels),
		URI:       out.URI,
		Path:      path,
		Timestamp: out.Timestamp,
	})
}

func loadRegistry(tx ledger.Tx, addr model.Key) (*model.Registry, error) {
	data, err := tx.Read(addr)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", addr, err)
	}
	reg, err := model.DecodeRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", addr, err)
	}
	return reg, nil
}

func loadScore(tx ledger.Tx, addr model.Key) (*model.ScoreRecord, error) {
	data, err := tx.Read(addr)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", addr, err)
	}
	rec, err := model.DecodeScore(data)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", addr, err)
	}
	return rec, nil
}
