package service

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"ib_api/internal/models"
	"ib_api/internal/modules/config"
)

const (
	testUser     = "trader"
	testPassword = "correct horse"
)

type fakeGateway struct {
	mu        sync.Mutex
	connected bool
	status    models.ConnectionStatus
	snap      models.AccountSnapshot
	panics    bool
}

func (f *fakeGateway) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeGateway) Status() models.ConnectionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeGateway) Snapshot() models.AccountSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("snapshot exploded")
	}
	return f.snap
}

func (f *fakeGateway) TradingMode() string { return "paper" }

func connectedGateway() *fakeGateway {
	return &fakeGateway{
		connected: true,
		status: models.ConnectionStatus{
			State: "connected", Connected: true, AccountReady: true, AccountID: "DU123",
			TradingMode: "paper", GatewayHost: "ib-gateway", GatewayPort: 4004,
		},
		snap: models.AccountSnapshot{
			AccountID:  "DU123",
			LastUpdate: "15:59",
			Values: models.AccountValues{
				models.NetLiquidation: {{Value: "90000", Currency: "EUR"}, {Value: "100000.25", Currency: "USD"}},
				models.BuyingPower:    {{Value: "not-a-number", Currency: "USD"}},
				models.AvailableFunds: {{Value: "5000", Currency: "BASE"}},
				models.CashBalance:    {{Value: "1200", Currency: "USD"}},
			},
			CashBalances: map[string]string{"USD": "1200"},
			Positions: []models.Position{{
				Symbol: "AAPL", SecType: "STK", Exchange: "NASDAQ", Currency: "USD",
				Quantity: decimal.RequireFromString("10.5"), MarketPrice: 190, MarketValue: 1995,
				AverageCost: 150, UnrealizedPnL: 420, RealizedPnL: 0,
			}},
			Connected: true,
			Ready:     true,
		},
	}
}

type harness struct {
	t       *testing.T
	gw      *fakeGateway
	auth    *Auth
	srv     *Server
	handler http.Handler
	reg     *prometheus.Registry
	tracer  *mocktracer.MockTracer
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T, gw *fakeGateway) *harness {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	auth, err := NewAuth(config.Auth{
		JWTSecret:    strings.Repeat("k", 32),
		JWTAlgorithm: "HS256",
		TokenTTL:     30 * time.Minute,
		Username:     testUser,
		PasswordHash: string(hash),
	})
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	reg := prometheus.NewRegistry()
	tracer := mocktracer.New()
	srv := NewServer(gw, auth, tracer, reg, zap.New(core))
	return &harness{t: t, gw: gw, auth: auth, srv: srv, handler: srv.Handler(), reg: reg, tracer: tracer, logs: logs}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return h.do(req)
}

func (h *harness) token() string {
	h.t.Helper()
	tok, _, err := h.auth.Issue(testUser)
	require.NoError(h.t, err)
	return tok
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRootAndRequestID(t *testing.T) {
	h := newHarness(t, connectedGateway())

	rec := h.get("/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	root := decode[RootResponse](t, rec)
	assert.Equal(t, "IB API", root.Name)
	assert.Equal(t, "/health", root.Health)

	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", id)
	assert.Equal(t, id, h.do(req).Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "<script>")
	assert.NotEqual(t, "<script>", h.do(req).Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusNotFound, h.get("/nope", "").Code)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name      string
		status    models.ConnectionStatus
		wantCode  int
		wantState string
	}{
		{
			name:      "healthy",
			status:    models.ConnectionStatus{Connected: true, AccountReady: true, AccountID: "DU1"},
			wantCode:  http.StatusOK,
			wantState: "healthy",
		},
		{
			name:      "degraded",
			status:    models.ConnectionStatus{Connected: true},
			wantCode:  http.StatusServiceUnavailable,
			wantState: "degraded",
		},
		{
			name:      "unhealthy",
			status:    models.ConnectionStatus{AccountReady: true},
			wantCode:  http.StatusServiceUnavailable,
			wantState: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := connectedGateway()
			gw.status = tt.status
			h := newHarness(t, gw)

			rec := h.get("/health", "")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantState, decode[HealthResponse](t, rec).Status)
		})
	}
}

func TestHealthHidesErrorText(t *testing.T) {
	gw := connectedGateway()
	gw.status = models.ConnectionStatus{
		State: "connection_lost", GatewayHost: "ib-gateway", GatewayPort: 4004, TradingMode: "paper",
		LastError: "Error 502: Couldn't connect to TWS. Confirm that API is enabled", LastErrorCode: 502,
	}
	h := newHarness(t, gw)

	rec := h.get("/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Couldn't connect")

	resp := decode[HealthResponse](t, rec)
	require.NotNil(t, resp.LastErrorCode)
	assert.Equal(t, 502, *resp.LastErrorCode)
	assert.Nil(t, resp.AccountID)
	assert.Equal(t, 4004, resp.GatewayPort)

	rec = h.get("/gateway/status", h.token())
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[GatewayStatusResponse](t, rec)
	require.NotNil(t, st.LastError)
	assert.Contains(t, *st.LastError, "502")
	assert.Equal(t, "connection_lost", st.State)
}

func postForm(h *harness, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req)
}

func TestToken(t *testing.T) {
	h := newHarness(t, connectedGateway())

	rec := postForm(h, url.Values{"username": {testUser}, "password": {testPassword}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	tok := decode[TokenResponse](t, rec)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, 1800, tok.ExpiresIn)
	sub, err := h.auth.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testUser, sub)

	assert.Equal(t, http.StatusOK, h.get("/account/summary", tok.AccessToken).Code)
}

func TestTokenRejected(t *testing.T) {
	h := newHarness(t, connectedGateway())

	for name, form := range map[string]url.Values{
		"wrong password": {"username": {testUser}, "password": {"nope"}},
		"wrong user":     {"username": {"root"}, "password": {testPassword}},
	} {
		t.Run(name, func(t *testing.T) {
			rec := postForm(h, form)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			assert.Equal(t, "Incorrect username or password", decode[ErrorResponse](t, rec).Detail)
		})
	}

	rec := postForm(h, url.Values{"username": {testUser}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	assert.Equal(t, http.StatusMethodNotAllowed, h.get("/auth/token", "").Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t, connectedGateway())

	expired := *h.auth
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	oldTok, _, err := expired.Issue(testUser)
	require.NoError(t, err)

	other, err := NewAuth(config.Auth{JWTSecret: strings.Repeat("x", 32), JWTAlgorithm: "HS256", TokenTTL: time.Minute})
	require.NoError(t, err)
	foreignTok, _, err := other.Issue(testUser)
	require.NoError(t, err)

	for _, path := range []string{"/account/balance", "/account/summary", "/gateway/status"} {
		for name, tok := range map[string]string{"missing": "", "garbage": "abc.def.ghi", "expired": oldTok, "foreign": foreignTok} {
			t.Run(path+" "+name, func(t *testing.T) {
				rec := h.get(path, tok)
				assert.Equal(t, http.StatusUnauthorized, rec.Code)
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			})
		}
	}
}

func TestAccountNotConnected(t *testing.T) {
	gw := connectedGateway()
	gw.connected = false
	h := newHarness(t, gw)
	tok := h.token()

	for _, path := range []string{"/account/balance", "/account/summary"} {
		rec := h.get(path, tok)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "Not connected to IB Gateway", resp.Detail)
		assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.CorrelationID)
	}
}

func TestBalance(t *testing.T) {
	h := newHarness(t, connectedGateway())

	rec := h.get("/account/balance", h.token())
	require.Equal(t, http.StatusOK, rec.Code)
	b := decode[BalanceResponse](t, rec)

	assert.Equal(t, "DU123", b.AccountID)
	assert.Equal(t, "15:59", b.LastUpdate)
	assert.True(t, b.Connected)
	assert.Equal(t, "paper", b.TradingMode)
	assert.Equal(t, models.AccountValue{Value: "100000.25", Currency: "USD"}, b.Summary[models.NetLiquidation])
	assert.Equal(t, models.AccountValue{Value: "5000", Currency: "BASE"}, b.Summary[models.AvailableFunds])
	assert.NotContains(t, b.Summary, models.TotalCashValue)
	assert.Equal(t, map[string]string{"USD": "1200"}, b.CashBalances)

	require.Len(t, b.Positions, 1)
	p := b.Positions[0]
	assert.Equal(t, "AAPL", p.Symbol)
	assert.Equal(t, "STK", p.SecType)
	assert.InDelta(t, 10.5, p.Position, 1e-9)
	assert.InDelta(t, 420, p.UnrealizedPNL, 1e-9)
}

func TestSummary(t *testing.T) {
	h := newHarness(t, connectedGateway())

	rec := h.get("/account/summary", h.token())
	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[SummaryResponse](t, rec)

	assert.Equal(t, "DU123", s.AccountID)
	assert.Equal(t, NumericValue{Value: 100000.25, Currency: "USD"}, s.NetLiquidation)
	assert.Equal(t, NumericValue{Value: 0, Currency: "USD"}, s.BuyingPower, "malformed value")
	assert.Equal(t, NumericValue{Value: 5000, Currency: "BASE"}, s.AvailableFunds)
	assert.Equal(t, NumericValue{Value: 0, Currency: "USD"}, s.RealizedPnL, "missing value")
	assert.Equal(t, 1, s.PositionCount)
}

func TestPanicBecomesOpaque500(t *testing.T) {
	gw := connectedGateway()
	gw.panics = true
	h := newHarness(t, gw)

	rec := h.get("/account/balance", h.token())
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "exploded")

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Internal server error", resp.Detail)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.CorrelationID)

	entries := h.logs.FilterMessage("panic serving request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, resp.CorrelationID, entries[0].ContextMap()["request_id"])
}

func TestPanicAfterResponseStarted(t *testing.T) {
	h := newHarness(t, connectedGateway())
	handler := h.srv.recoverPanics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"partial":`))
		panic("late failure")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, `{"partial":`, rec.Body.String(), "no error body appended")

	entries := h.logs.FilterMessage("panic serving request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].ContextMap()["response_started"])
}

func TestDocsAndOpenAPI(t *testing.T) {
	h := newHarness(t, connectedGateway())

	rec := h.get("/docs", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, h.get("/docs?token=bogus", "").Code)

	rec = h.get("/docs?token="+url.QueryEscape(h.token()), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/openapi.json")

	rec = h.get("/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[map[string]any](t, rec)
	assert.Equal(t, "3.0.3", doc["openapi"])
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/health", "/auth/token", "/account/balance", "/account/summary", "/gateway/status"} {
		assert.Contains(t, paths, p)
	}

	rec = h.get("/openapi.yaml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi: 3.0.3")
	assert.Contains(t, rec.Body.String(), "/account/balance:")
}

func TestObservability(t *testing.T) {
	h := newHarness(t, connectedGateway())

	h.get("/health", "")
	h.get("/health", "")
	h.get("/account/balance", "")
	h.get("/missing", "")

	requests := h.srv.metrics.requests
	assert.Equal(t, 2.0, testutil.ToFloat64(requests.WithLabelValues("GET", "GET /health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(requests.WithLabelValues("GET", "GET /account/balance", "401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(requests.WithLabelValues("GET", "unmatched", "404")))

	n, err := testutil.GatherAndCount(h.reg, "ib_api_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	spans := h.tracer.FinishedSpans()
	require.Len(t, spans, 4)
	assert.Equal(t, "HTTP GET /health", spans[0].OperationName)
	assert.EqualValues(t, 200, spans[0].Tag("http.status_code"))
	assert.Equal(t, "HTTP unmatched", spans[3].OperationName)

	access := h.logs.FilterMessage("request").All()
	require.Len(t, access, 4)
	assert.EqualValues(t, 401, access[2].ContextMap()["status"])
}
