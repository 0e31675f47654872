package organization

import (
	"github.com/agencyops/credcore/internal/organization/repository"
	"github.com/agencyops/credcore/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
