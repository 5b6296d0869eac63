package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"ib_api/internal/modules/config"
	"ib_api/internal/modules/health/service"
	"ib_api/internal/supervisor"
)

type Config struct {
	Addr string // e.g. ":9100"
}

func NewConfig(cfg *config.Config) Config {
	return Config{Addr: cfg.Service.AdminAddr}
}

// NewRegistry holds the process metrics, the gateway collector and whatever
// other modules register (HTTP request metrics).
func NewRegistry(gw service.GatewayView) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		service.NewCollector(gw),
	)
	return reg
}

func NewMux(state *service.State, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		gw := state.Gateway()
		resp := map[string]any{
			"ready":            state.Ready(),
			"serving":          state.Serving(),
			"gatewayState":     gw.State,
			"gatewayConnected": gw.Connected,
			"accountReady":     gw.AccountReady,
			"errorCount":       gw.ErrorCount,
			"lastErrorCode":    gw.LastErrorCode,
			"uptimeSec":        int64(state.Uptime().Seconds()),
		}
		b, err := sonic.Marshal(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		MaxRequestsInFlight: 5,
		Timeout:             30 * time.Second,
	}))

	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg Config, mux *http.ServeMux, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			log.Info("admin server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("admin server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			func(s *supervisor.Supervisor) service.GatewayView { return s },
			service.NewState,
			NewConfig,
			NewRegistry,
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}
