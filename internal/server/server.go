package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	affiliatedomain "github.com/smallbiznis/payout/internal/affiliate/domain"
	affiliateservice "github.com/smallbiznis/payout/internal/affiliate/service"
	"github.com/smallbiznis/payout/internal/config"
	"github.com/smallbiznis/payout/internal/observability"
	obsmiddleware "github.com/smallbiznis/payout/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payout/internal/observability/metrics"
	obstracing "github.com/smallbiznis/payout/internal/observability/tracing"
	"github.com/smallbiznis/payout/internal/scheduler"
	schedulerdomain "github.com/smallbiznis/payout/internal/scheduler/domain"
	settlementdomain "github.com/smallbiznis/payout/internal/settlement/domain"
	settlementservice "github.com/smallbiznis/payout/internal/settlement/service"
	"github.com/smallbiznis/payout/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(
		func(a *settlementservice.Admin) SettlementAdmin { return a },
		func(s *affiliateservice.Service) AffiliatePayouts { return s },
		func(s *scheduler.Scheduler) JobRunLister { return s },
	),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// SettlementAdmin is the settlement control surface served under /admin/payouts.
type SettlementAdmin interface {
	TriggerSettlement(ctx context.Context) (*settlementdomain.RunReport, error)
	EligibilitySummary(ctx context.Context) (*settlementdomain.EligibilitySummary, error)
	Config() settlementdomain.ConfigSnapshot
	Healthy(ctx context.Context) bool
}

type AffiliatePayouts interface {
	Get(ctx context.Context, id snowflake.ID) (*affiliatedomain.AffiliatePayout, error)
	List(ctx context.Context, req affiliateservice.ListRequest) ([]affiliatedomain.AffiliatePayout, pagination.PageInfo, error)
	MarkPaid(ctx context.Context, id snowflake.ID) (*affiliatedomain.AffiliatePayout, error)
	Cancel(ctx context.Context, id snowflake.ID, reason string) (*affiliatedomain.AffiliatePayout, error)
	BulkMarkPaid(ctx context.Context, ids []snowflake.ID) (*affiliatedomain.BulkResult, error)
	BulkCancel(ctx context.Context, ids []snowflake.ID, reason string) (*affiliatedomain.BulkResult, error)
	Calculate(ctx context.Context, usageID snowflake.ID, finalPrice decimal.Decimal) (*affiliatedomain.AffiliatePayout, error)
}

type JobRunLister interface {
	ListRuns(ctx context.Context, job string, limit int) ([]schedulerdomain.JobRun, error)
}

func NewEngine(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, log, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.String("addr", srv.Addr), zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	log        *zap.Logger
	validate   *validator.Validate
	settlement SettlementAdmin
	payouts    AffiliatePayouts
	jobRuns    JobRunLister
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Log        *zap.Logger
	Settlement SettlementAdmin
	Payouts    AffiliatePayouts
	JobRuns    JobRunLister `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		log:        p.Log.Named("http.server"),
		validate:   validator.New(),
		settlement: p.Settlement,
		payouts:    p.Payouts,
		jobRuns:    p.JobRuns,
	}

	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin/payouts")

	admin.GET("/health", s.GetHealth)

	// -------- Settlement --------
	admin.POST("/settlement/trigger", s.TriggerSettlement)
	admin.GET("/settlement/eligibility-summary", s.GetEligibilitySummary)
	admin.GET("/settlement/config", s.GetSettlementConfig)

	// -------- Affiliate payouts --------
	admin.GET("/affiliate", s.ListAffiliatePayouts)
	admin.POST("/affiliate/bulk-mark-paid", s.BulkMarkAffiliatePayoutsPaid)
	admin.POST("/affiliate/bulk-cancel", s.BulkCancelAffiliatePayouts)
	admin.GET("/affiliate/:id", s.GetAffiliatePayout)
	admin.POST("/affiliate/:id/mark-paid", s.MarkAffiliatePayoutPaid)
	admin.POST("/affiliate/:id/cancel", s.CancelAffiliatePayout)

	admin.POST("/discount-usages/:id/commission", s.CreateCommission)

	admin.GET("/job-runs", s.ListJobRuns)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
