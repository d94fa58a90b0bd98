package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/accountcontext"
	"github.com/smallbiznis/recouply/internal/clock"
	"github.com/smallbiznis/recouply/internal/debtor/domain"
	"github.com/smallbiznis/recouply/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxReferenceAttempts = 3

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("debtor.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateDebtorRequest) (domain.Debtor, error) {
	accountID, ok := accountcontext.AccountIDFromContext(ctx)
	if !ok {
		return domain.Debtor{}, domain.ErrInvalidAccount
	}

	name := strings.TrimSpace(req.Name)
	company := strings.TrimSpace(req.CompanyName)
	if name == "" {
		name = company
	}
	if name == "" {
		return domain.Debtor{}, domain.ErrInvalidName
	}

	now := s.clock.Now().UTC()
	debtor := domain.Debtor{
		ID:          s.genID.Generate(),
		AccountID:   accountID,
		Name:        name,
		CompanyName: company,
		Email:       strings.TrimSpace(req.Email),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if external := strings.TrimSpace(req.ExternalCustomerID); external != "" {
		debtor.ExternalCustomerID = &external
	}

	// Reference ids are random; a collision with an existing debtor is retried.
	var err error
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		debtor.ReferenceID = domain.NewReferenceID()
		err = s.repo.Insert(ctx, s.db, &debtor)
		if err == nil {
			s.log.Debug("debtor created",
				zap.String("debtor_id", debtor.ID.String()),
				zap.String("reference_id", debtor.ReferenceID),
			)
			return debtor, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return domain.Debtor{}, err
		}
	}
	return domain.Debtor{}, err
}

func (s *Service) List(ctx context.Context) ([]domain.Debtor, error) {
	accountID, ok := accountcontext.AccountIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidAccount
	}

	items, err := s.repo.ListByAccount(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	debtors := make([]domain.Debtor, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		debtors = append(debtors, *item)
	}
	return debtors, nil
}

func (s *Service) SetOutreachPaused(ctx context.Context, id string, paused bool) (domain.Debtor, error) {
	accountID, ok := accountcontext.AccountIDFromContext(ctx)
	if !ok {
		return domain.Debtor{}, domain.ErrInvalidAccount
	}
	debtorID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || debtorID == 0 {
		return domain.Debtor{}, domain.ErrInvalidID
	}

	updated, err := s.repo.SetOutreachPaused(ctx, s.db, accountID, debtorID, paused)
	if err != nil {
		return domain.Debtor{}, err
	}
	if !updated {
		return domain.Debtor{}, domain.ErrNotFound
	}

	item, err := s.repo.FindByID(ctx, s.db, accountID, debtorID)
	if err != nil {
		return domain.Debtor{}, err
	}
	if item == nil {
		return domain.Debtor{}, domain.ErrNotFound
	}
	return *item, nil
}
