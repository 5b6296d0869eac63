package gateway

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"ib_api/internal/account"
	"ib_api/internal/gateway"
	"ib_api/internal/modules/config"
	"ib_api/internal/modules/gateway/service"
	"ib_api/internal/notify"
	"ib_api/internal/supervisor"
)

func NewSupervisor(cfg config.Gateway, session gateway.Session, cache *account.Cache, n notify.Notifier, log *zap.Logger) *supervisor.Supervisor {
	return supervisor.New(supervisor.Config{
		Host:           cfg.Host,
		Port:           cfg.Port(),
		ClientID:       cfg.ClientID,
		TradingMode:    cfg.TradingMode,
		ConnectTimeout: cfg.ConnectTimeout,
		StopTimeout:    cfg.StopTimeout,
	}, session, cache, n, log)
}

func Module() fx.Option {
	return fx.Module("gateway",
		fx.Provide(
			account.NewCache,
			func(cfg config.Gateway, log *zap.Logger) gateway.Session {
				return gateway.NewWSSession(cfg.BridgePath, log)
			},
			NewSupervisor,
			func(cfg config.Gateway, sup *supervisor.Supervisor, log *zap.Logger) *service.Watchdog {
				return service.NewWatchdog(sup, cfg.ReconnectInterval, log)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, sup *supervisor.Supervisor, wd *service.Watchdog, n notify.Notifier, log *zap.Logger) {
			if tg, ok := n.(*notify.Telegram); ok {
				tg.Attach(sup)
			}
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					// the API stays up without the gateway; /health reports it
					if err := sup.Start(ctx); err != nil {
						log.Warn("gateway unavailable at startup", zap.Error(err))
					}
					wd.Run()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					wd.Stop()
					sup.Stop()
					return nil
				},
			})
		}),
	)
}
