package service

import (
	"context"
	"net/http"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	subjectKey
)

const requestIDHeader = "X-Request-ID"

// ErrorResponse is the body of every non-2xx answer. Detail never carries
// internal error text; CorrelationID ties the response to the server log.
type ErrorResponse struct {
	Detail        string `json:"detail"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		s.log.Error("encoding JSON response", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		status = http.StatusInternalServerError
		b, _ = sonic.Marshal(ErrorResponse{Detail: "Internal server error", CorrelationID: RequestID(r.Context())})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	s.writeJSON(w, r, status, ErrorResponse{Detail: detail, CorrelationID: RequestID(r.Context())})
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	s.writeError(w, r, http.StatusUnauthorized, detail)
}
