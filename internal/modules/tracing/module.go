package tracing

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"

	"ib_api/internal/modules/config"
	"ib_api/pkg/tracing"
)

const serviceName = "ib-api"

func NewTracer(lc fx.Lifecycle, cfg *config.Config) (opentracing.Tracer, error) {
	tracer, closeFn, err := tracing.InitTracer(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: serviceName,
		Host:        cfg.Tracing.Host,
		Port:        cfg.Tracing.Port,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			closeFn()
			return nil
		},
	})
	return tracer, nil
}

func Module() fx.Option {
	return fx.Module("tracing",
		fx.Provide(NewTracer),
	)
}
