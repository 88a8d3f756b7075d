package scheduler

import (
	"context"

	"github.com/smallbiznis/payout/internal/scheduler/repository"
	settlementservice "github.com/smallbiznis/payout/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(repository.Provide),
	fx.Provide(New),
	fx.Provide(func(s *Scheduler) settlementservice.Trigger { return s }),
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return sched.Start()
		},
		OnStop: func(context.Context) error {
			return sched.Stop()
		},
	})
}
