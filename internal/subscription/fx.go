package subscription

import (
	"github.com/agencyops/credcore/internal/subscription/repository"
	"github.com/agencyops/credcore/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
