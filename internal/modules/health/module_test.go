package health

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ib_api/internal/models"
	"ib_api/internal/modules/health/service"
)

type fakeGateway struct {
	status models.ConnectionStatus
	snap   models.AccountSnapshot
}

func (f *fakeGateway) Status() models.ConnectionStatus  { return f.status }
func (f *fakeGateway) Snapshot() models.AccountSnapshot { return f.snap }

func readyGateway() *fakeGateway {
	return &fakeGateway{
		status: models.ConnectionStatus{
			State: "connected", Connected: true, AccountReady: true,
			TradingMode: "paper", ErrorCount: 2, LastErrorCode: 502,
		},
		snap: models.AccountSnapshot{
			AccountID: "DU1",
			Values: models.AccountValues{
				models.NetLiquidation: {{Value: "1000.5", Currency: "USD"}, {Value: "920", Currency: "EUR"}},
				models.BuyingPower:    {{Value: "n/a", Currency: "USD"}},
				"AccountType":         {{Value: "INDIVIDUAL"}},
			},
			CashBalances: map[string]string{"USD": "300"},
			Positions: []models.Position{
				{Symbol: "AAPL", SecType: "STK", Currency: "USD", Quantity: decimal.NewFromInt(10), MarketValue: 1900},
			},
			Connected: true,
			Ready:     true,
		},
	}
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestMuxProbes(t *testing.T) {
	gw := readyGateway()
	state := service.NewState(gw)
	mux := NewMux(state, NewRegistry(gw))

	code, body := get(t, mux, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, _ = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code, "API not serving yet")

	state.SetServing(true)
	code, body = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body)

	gw.status.AccountReady = false
	code, _ = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestMuxHealthz(t *testing.T) {
	gw := readyGateway()
	state := service.NewState(gw)
	state.SetServing(true)
	mux := NewMux(state, NewRegistry(gw))

	code, body := get(t, mux, "/healthz")
	require.Equal(t, http.StatusOK, code)

	var resp map[string]any
	require.NoError(t, sonic.UnmarshalString(body, &resp))
	assert.Equal(t, true, resp["ready"])
	assert.Equal(t, "connected", resp["gatewayState"])
	assert.EqualValues(t, 2, resp["errorCount"])
	assert.EqualValues(t, 502, resp["lastErrorCode"])
	assert.NotContains(t, body, "DU1")
}

func TestMuxMetrics(t *testing.T) {
	gw := readyGateway()
	mux := NewMux(service.NewState(gw), NewRegistry(gw))

	code, body := get(t, mux, "/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `ib_gateway_connected{trading_mode="paper"} 1`)
	assert.Contains(t, body, `ib_account_value{currency="EUR",metric="NetLiquidation"} 920`)
	assert.Contains(t, body, "go_goroutines")
}

func TestCollector(t *testing.T) {
	gw := readyGateway()
	c := service.NewCollector(gw)

	expected := `
# HELP ib_account_cash_balance Non-zero cash balance per currency.
# TYPE ib_account_cash_balance gauge
ib_account_cash_balance{currency="USD"} 300
# HELP ib_account_ready 1 once the initial account download has completed.
# TYPE ib_account_ready gauge
ib_account_ready 1
# HELP ib_account_value Headline account values.
# TYPE ib_account_value gauge
ib_account_value{currency="EUR",metric="NetLiquidation"} 920
ib_account_value{currency="USD",metric="NetLiquidation"} 1000.5
# HELP ib_gateway_connected 1 when the gateway session is connected.
# TYPE ib_gateway_connected gauge
ib_gateway_connected{trading_mode="paper"} 1
# HELP ib_gateway_errors_total Operational errors reported by the gateway.
# TYPE ib_gateway_errors_total counter
ib_gateway_errors_total 2
# HELP ib_position_market_value Position market value.
# TYPE ib_position_market_value gauge
ib_position_market_value{currency="USD",sec_type="STK",symbol="AAPL"} 1900
# HELP ib_position_quantity Position size.
# TYPE ib_position_quantity gauge
ib_position_quantity{sec_type="STK",symbol="AAPL"} 10
# HELP ib_positions Number of open positions.
# TYPE ib_positions gauge
ib_positions 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))

	// disconnected with an empty cache still exports the scalar series
	gw.status = models.ConnectionStatus{TradingMode: "live"}
	gw.snap = models.AccountSnapshot{}
	assert.Equal(t, 4, testutil.CollectAndCount(c))
}

func TestRegistryAcceptsExtraCollectors(t *testing.T) {
	reg := NewRegistry(readyGateway())
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ib_api_http_requests_total"}, []string{"route"})
	require.NoError(t, reg.Register(requests))
}
