package observability

import (
	"github.com/agencyops/credcore/internal/observability/metrics"
	"github.com/agencyops/credcore/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	log.Module,
	fx.Provide(
		func() prometheus.Registerer { return prometheus.DefaultRegisterer },
		metrics.New,
		metrics.NewHTTPMetrics,
	),
)
