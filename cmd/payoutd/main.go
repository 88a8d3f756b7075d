package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payout/internal/affiliate"
	"github.com/smallbiznis/payout/internal/cache"
	"github.com/smallbiznis/payout/internal/clock"
	"github.com/smallbiznis/payout/internal/config"
	"github.com/smallbiznis/payout/internal/dispatch"
	"github.com/smallbiznis/payout/internal/earning"
	"github.com/smallbiznis/payout/internal/lease"
	"github.com/smallbiznis/payout/internal/migration"
	"github.com/smallbiznis/payout/internal/notification"
	"github.com/smallbiznis/payout/internal/observability"
	"github.com/smallbiznis/payout/internal/payment"
	"github.com/smallbiznis/payout/internal/scheduler"
	"github.com/smallbiznis/payout/internal/server"
	"github.com/smallbiznis/payout/internal/settlement"
	"github.com/smallbiznis/payout/pkg/db"
	"github.com/smallbiznis/payout/pkg/redisx"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		redisx.Module,
		lease.Module,
		cache.Module,
		notification.Module,
		dispatch.Module,

		// Payout domains
		payment.Module,
		earning.Module,
		affiliate.Module,
		settlement.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
