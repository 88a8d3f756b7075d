package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payout/internal/affiliate/domain"
	"github.com/smallbiznis/payout/internal/apperror"
	"github.com/smallbiznis/payout/internal/clock"
	"github.com/smallbiznis/payout/internal/config"
	obsmetrics "github.com/smallbiznis/payout/internal/observability/metrics"
	"github.com/smallbiznis/payout/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Config     *config.PayoutConfigHolder
	Metrics    *obsmetrics.SettlementMetrics `optional:"true"`
	ObsMetrics *obsmetrics.Metrics           `optional:"true"`
}

// Service owns affiliate commission creation and the admin payout lifecycle.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	cfg        *config.PayoutConfigHolder
	metrics    *obsmetrics.SettlementMetrics
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("affiliate.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		cfg:        p.Config,
		metrics:    p.Metrics,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.AffiliatePayout, error) {
	payout, err := s.repo.FindPayout(ctx, s.db, id)
	if err != nil {
		return nil, apperror.FromStore(err)
	}
	if payout == nil {
		return nil, apperror.Wrap(apperror.KindNotFound, domain.ErrPayoutNotFound)
	}
	return payout, nil
}

type ListRequest struct {
	Status           string
	ReferredByUserID snowflake.ID
	pagination.Pagination
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]domain.AffiliatePayout, pagination.PageInfo, error) {
	status := domain.PayoutStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	switch status {
	case "", domain.PayoutStatusPending, domain.PayoutStatusPaid, domain.PayoutStatusCancelled:
	default:
		return nil, pagination.PageInfo{}, apperror.Validation("invalid_status", domain.ErrInvalidStatus)
	}

	var afterID snowflake.ID
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, pagination.PageInfo{}, apperror.Validation("invalid_page_token", err)
		}
		afterID, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.PageInfo{}, apperror.Validation("invalid_page_token", err)
		}
	}
	limit := req.PageSize
	if limit <= 0 || limit > 250 {
		limit = 50
	}

	items, err := s.repo.ListPayouts(ctx, s.db, domain.ListPayoutsRequest{
		Status:           status,
		ReferredByUserID: req.ReferredByUserID,
		AfterID:          afterID,
		Limit:            limit + 1,
	})
	if err != nil {
		return nil, pagination.PageInfo{}, apperror.FromStore(err)
	}
	page, info := pagination.Trim(items, limit, func(p domain.AffiliatePayout) string {
		return p.ID.String()
	})
	return page, info, nil
}
