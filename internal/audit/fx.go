package audit

import (
	"github.com/agencyops/credcore/internal/audit/repository"
	"github.com/agencyops/credcore/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
