package main

import (
	"context"
	"time"

	"go.uber.org/fx"

	"ib_api/internal/modules/archive"
	"ib_api/internal/modules/config"
	"ib_api/internal/modules/gateway"
	"ib_api/internal/modules/health"
	"ib_api/internal/modules/httpapi"
	"ib_api/internal/modules/logging"
	"ib_api/internal/modules/notify"
	"ib_api/internal/modules/postgres"
	"ib_api/internal/modules/tracing"
)

func modules() []fx.Option {
	return []fx.Option{
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		logging.Module(),
		tracing.Module(),
		notify.Module(),
		gateway.Module(),
		health.Module(),
		httpapi.Module(),
		postgres.Module(),
		archive.Module(),
	}
}

func options() []fx.Option {
	return append(modules(),
		fx.WithLogger(logging.FxLogger),
		// the gateway handshake alone may take IB_CONNECTION_TIMEOUT
		fx.StartTimeout(45*time.Second),
	)
}

func main() {
	fx.New(options()...).Run()
}
