package observability

import (
	"github.com/Johanhagos/mijn-api/internal/observability/logger"
	"github.com/Johanhagos/mijn-api/internal/observability/metrics"
	"github.com/Johanhagos/mijn-api/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.NewWorkerMetrics,
	),
	// the tracer provider registers itself globally; force construction
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
