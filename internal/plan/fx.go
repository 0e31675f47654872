package plan

import (
	"github.com/agencyops/credcore/internal/plan/repository"
	"github.com/agencyops/credcore/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
