package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	affiliatedomain "github.com/smallbiznis/payout/internal/affiliate/domain"
	"github.com/smallbiznis/payout/internal/cache"
	"github.com/smallbiznis/payout/internal/clock"
	"github.com/smallbiznis/payout/internal/config"
	"github.com/smallbiznis/payout/internal/dispatch"
	earningdomain "github.com/smallbiznis/payout/internal/earning/domain"
	"github.com/smallbiznis/payout/internal/notification"
	obslogger "github.com/smallbiznis/payout/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payout/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/payout/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CommissionCalculator creates the referral commission for a settled payment.
type CommissionCalculator interface {
	CalculateForPayment(ctx context.Context, userID, courseID snowflake.ID, finalPrice decimal.Decimal) (*affiliatedomain.AffiliatePayout, error)
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Payments    paymentdomain.Repository
	Earnings    earningdomain.Repository
	Config      *config.PayoutConfigHolder
	Commissions CommissionCalculator          `optional:"true"`
	Dispatcher  *dispatch.Dispatcher          `optional:"true"`
	Cache       cache.Invalidator             `optional:"true"`
	Notifier    notification.Notifier         `optional:"true"`
	Metrics     *obsmetrics.SettlementMetrics `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics           `optional:"true"`
}

// Service scans for eligible payments and settles them into earnings.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	payments    paymentdomain.Repository
	earnings    earningdomain.Repository
	cfg         *config.PayoutConfigHolder
	commissions CommissionCalculator
	dispatcher  *dispatch.Dispatcher
	cache       cache.Invalidator
	notifier    notification.Notifier
	metrics     *obsmetrics.SettlementMetrics
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("settlement.processor"),
		genID:       p.GenID,
		clock:       p.Clock,
		payments:    p.Payments,
		earnings:    p.Earnings,
		cfg:         p.Config,
		commissions: p.Commissions,
		dispatcher:  p.Dispatcher,
		cache:       p.Cache,
		notifier:    p.Notifier,
		metrics:     p.Metrics,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

// submit hands a side effect to the dispatcher, or runs it inline without one.
func (s *Service) submit(ctx context.Context, name string, fn func(context.Context) error) {
	task := dispatch.Task{Name: name, Run: fn}
	if s.dispatcher != nil {
		if err := s.dispatcher.Submit(ctx, task); err != nil {
			s.logger(ctx).Warn("side effect not dispatched", zap.String("task", name), zap.Error(err))
		}
		return
	}
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		s.logger(ctx).Error("side effect failed", zap.String("task", name), zap.Error(err))
	}
}
