package earning

import (
	"github.com/smallbiznis/payout/internal/earning/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("earning.repository",
	fx.Provide(repository.Provide),
)
