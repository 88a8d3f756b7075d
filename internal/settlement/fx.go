package settlement

import (
	affiliateservice "github.com/smallbiznis/payout/internal/affiliate/service"
	"github.com/smallbiznis/payout/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(service.NewService),
	fx.Provide(service.NewAdmin),
	fx.Provide(func(s *affiliateservice.Service) service.CommissionCalculator { return s }),
)
