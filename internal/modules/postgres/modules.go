package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"ib_api/internal/modules/config"
	"ib_api/pkg/db"
	"ib_api/pkg/logger"
)

// NewTxManager opens the pool when DATABASE_DSN is set. Without it the
// service runs without persistence and the manager is nil.
func NewTxManager(ctx context.Context, lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*db.PgTxManager, error) {
	if cfg.DB == "" {
		log.Info("DATABASE_DSN not set, persistence disabled")
		return nil, nil
	}

	poolMaster, err := db.NewPool(ctx, db.PoolConfig{
		DSN:      cfg.DB,
		MaxConns: 4,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poolMaster: %w", err)
	}

	err = poolMaster.Ping(ctx)
	if err != nil {
		poolMaster.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("postgres pool ready: %d max conns", poolMaster.Config().MaxConns)

	m := db.NewPgTxManager(poolMaster)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			m.Close()
			return nil
		},
	})
	return m, nil
}

func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(NewTxManager),
	)
}
