package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"ib_api/internal/modules/config"
	health "ib_api/internal/modules/health/service"
	"ib_api/internal/modules/httpapi/service"
	"ib_api/internal/supervisor"
)

type Config struct {
	Addr string // e.g. ":8000"
}

func NewConfig(cfg *config.Config) Config {
	return Config{Addr: cfg.Service.HTTPAddr}
}

func NewServer(sup *supervisor.Supervisor, auth *service.Auth, tracer opentracing.Tracer, reg *prometheus.Registry, log *zap.Logger) *service.Server {
	return service.NewServer(sup, auth, tracer, reg, log)
}

func RunHTTP(lc fx.Lifecycle, cfg Config, api *service.Server, state *health.State, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			log.Info("api listening", zap.String("addr", ln.Addr().String()))
			state.SetServing(true)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("api server", zap.Error(err))
				}
				state.SetServing(false)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			state.SetServing(false)
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("httpapi",
		fx.Provide(
			service.NewAuth,
			NewConfig,
			NewServer,
		),
		fx.Invoke(RunHTTP),
	)
}
