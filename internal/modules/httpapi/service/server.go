package service

import (
	"net/http"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ib_api/internal/models"
)

const (
	serviceName    = "IB API"
	serviceVersion = "1.0.0"
)

// Gateway is the read side of the connection supervisor the API serves from.
type Gateway interface {
	IsConnected() bool
	Status() models.ConnectionStatus
	Snapshot() models.AccountSnapshot
	TradingMode() string
}

type Server struct {
	gw      Gateway
	auth    *Auth
	tracer  opentracing.Tracer
	metrics *metrics
	log     *zap.Logger
}

// NewServer builds the API. reg may be nil, in which case request metrics
// are collected but not exported.
func NewServer(gw Gateway, auth *Auth, tracer opentracing.Tracer, reg prometheus.Registerer, log *zap.Logger) *Server {
	if tracer == nil {
		tracer = opentracing.NoopTracer{}
	}
	return &Server{
		gw:      gw,
		auth:    auth,
		tracer:  tracer,
		metrics: newMetrics(reg),
		log:     log.Named("httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /auth/token", s.handleToken)

	mux.HandleFunc("GET /account/balance", s.requireAuth(s.handleBalance))
	mux.HandleFunc("GET /account/summary", s.requireAuth(s.handleSummary))
	mux.HandleFunc("GET /gateway/status", s.requireAuth(s.handleGatewayStatus))

	mux.HandleFunc("GET /openapi.json", s.handleOpenAPIJSON)
	mux.HandleFunc("GET /openapi.yaml", s.handleOpenAPIYAML)
	mux.HandleFunc("GET /docs", s.handleDocs)
}

// Handler returns the routes wrapped in request-id, observability and
// panic-recovery middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	route := func(r *http.Request) string {
		if _, pattern := mux.Handler(r); pattern != "" {
			return pattern
		}
		return "unmatched"
	}
	return withRequestID(s.observe(route, s.recoverPanics(mux)))
}

// requireConnected answers 503 when the gateway session is down.
func (s *Server) requireConnected(w http.ResponseWriter, r *http.Request) bool {
	if s.gw.IsConnected() {
		return true
	}
	s.writeError(w, r, http.StatusServiceUnavailable, "Not connected to IB Gateway")
	return false
}
