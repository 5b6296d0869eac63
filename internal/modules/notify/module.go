package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"ib_api/internal/modules/config"
	"ib_api/internal/notify"
)

// NewNotifier picks Telegram when a bot token and chat are configured and
// the service log otherwise.
func NewNotifier(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (notify.Notifier, error) {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		log.Info("telegram not configured, alerts go to the log")
		return notify.NewLog(log), nil
	}

	tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return tg.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			tg.Stop()
			return nil
		},
	})
	return tg, nil
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(NewNotifier),
	)
}
