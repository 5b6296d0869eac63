package config

import "go.uber.org/fx"

func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
			func(c *Config) Gateway { return c.Gateway },
			func(c *Config) Auth { return c.Auth },
		),
	)
}
