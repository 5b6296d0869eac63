package logging

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"ib_api/internal/modules/config"
	"ib_api/pkg/logger"
)

const serviceName = "ib-api"

// NewLogger builds the service logger and installs it behind the pkg/logger
// helpers.
func NewLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	l, err := logger.New(cfg.Service.LogLevel, serviceName)
	if err != nil {
		return nil, err
	}
	logger.Init(l)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = l.Sync()
			return nil
		},
	})
	return l, nil
}

func FxLogger(l *zap.Logger) fxevent.Logger {
	fl := &fxevent.ZapLogger{Logger: l.Named("fx")}
	fl.UseLogLevel(zap.DebugLevel)
	return fl
}

func Module() fx.Option {
	return fx.Module("logging",
		fx.Provide(NewLogger),
	)
}
