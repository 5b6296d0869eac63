package service

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ib_api_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ib_api_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

// withRequestID tags the request with the caller's X-Request-ID when it is a
// UUID, a fresh one otherwise, and echoes it on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// observe traces, measures and logs each request. route resolves the
// registered pattern so label cardinality stays bounded.
func (s *Server) observe(route func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		pattern := route(r)

		wireCtx, _ := s.tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(r.Header))
		span := s.tracer.StartSpan("HTTP "+pattern, ext.RPCServerOption(wireCtx))
		ext.HTTPMethod.Set(span, r.Method)
		ext.HTTPUrl.Set(span, r.URL.Path)
		span.SetTag("request_id", RequestID(r.Context()))
		defer span.Finish()

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(opentracing.ContextWithSpan(r.Context(), span)))

		code := sw.code()
		elapsed := time.Since(started)
		ext.HTTPStatusCode.Set(span, uint16(code))
		if code >= http.StatusInternalServerError {
			ext.Error.Set(span, true)
		}

		s.metrics.requests.WithLabelValues(r.Method, pattern, fmt.Sprint(code)).Inc()
		s.metrics.duration.WithLabelValues(pattern).Observe(elapsed.Seconds())

		fields := []zap.Field{
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", code),
			zap.Int("bytes", sw.bytes),
			zap.Duration("elapsed", elapsed),
		}
		if code >= http.StatusInternalServerError {
			s.log.Error("request", fields...)
			return
		}
		s.log.Info("request", fields...)
	})
}

// recoverPanics turns a panic into an opaque 500. The stack goes to the log
// under the request id. A response that has already started is left as it
// is.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw, ok := w.(*statusWriter)
		if !ok {
			sw = &statusWriter{ResponseWriter: w}
		}
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.log.Error("panic serving request",
					zap.String("request_id", RequestID(r.Context())),
					zap.Any("panic", p),
					zap.Bool("response_started", sw.status != 0),
					zap.ByteString("stack", debug.Stack()),
				)
				if sw.status != 0 {
					return
				}
				s.writeError(sw, r, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(sw, r)
	})
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			s.unauthorized(w, r, "Not authenticated")
			return
		}
		sub, err := s.auth.Verify(raw)
		if err != nil {
			s.log.Debug("token rejected", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
			s.unauthorized(w, r, "Could not validate credentials")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), subjectKey, sub)))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
