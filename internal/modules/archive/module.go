package archive

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"ib_api/internal/modules/archive/service"
	"ib_api/internal/modules/config"
	"ib_api/internal/supervisor"
	"ib_api/pkg/db"
)

func Module() fx.Option {
	return fx.Module("archive",
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, m *db.PgTxManager, sup *supervisor.Supervisor, log *zap.Logger) {
			if m == nil {
				log.Info("account archive disabled")
				return
			}
			a := service.NewArchiver(m, sup, cfg.ArchiveInterval, log)
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := a.Migrate(ctx); err != nil {
						return err
					}
					a.Run()
					return nil
				},
				OnStop: func(context.Context) error {
					a.Stop()
					return nil
				},
			})
		}),
	)
}
