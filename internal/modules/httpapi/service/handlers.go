package service

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ib_api/internal/account"
	"ib_api/internal/models"
)

type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
	Health  string `json:"health"`
	Auth    string `json:"auth"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, RootResponse{
		Name:    serviceName,
		Version: serviceVersion,
		Docs:    "/docs?token=<jwt-token>",
		Health:  "/health",
		Auth:    "POST /auth/token",
	})
}

// HealthResponse is public. It carries the error code of the last gateway
// error but never its text.
type HealthResponse struct {
	Status        string  `json:"status"`
	Connected     bool    `json:"connected"`
	AccountReady  bool    `json:"account_ready"`
	AccountID     *string `json:"account_id"`
	TradingMode   string  `json:"trading_mode"`
	GatewayHost   string  `json:"gateway_host"`
	GatewayPort   int     `json:"gateway_port"`
	LastErrorCode *int    `json:"last_error_code"`
}

const (
	healthHealthy   = "healthy"
	healthDegraded  = "degraded"
	healthUnhealthy = "unhealthy"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.gw.Status()

	status, code := healthUnhealthy, http.StatusServiceUnavailable
	switch {
	case st.Connected && st.AccountReady:
		status, code = healthHealthy, http.StatusOK
	case st.Connected:
		status = healthDegraded
	}

	resp := HealthResponse{
		Status:       status,
		Connected:    st.Connected,
		AccountReady: st.AccountReady,
		TradingMode:  st.TradingMode,
		GatewayHost:  st.GatewayHost,
		GatewayPort:  st.GatewayPort,
	}
	if st.AccountID != "" {
		resp.AccountID = &st.AccountID
	}
	if st.HasError() {
		resp.LastErrorCode = &st.LastErrorCode
	}
	s.writeJSON(w, r, code, resp)
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid form body")
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		s.writeError(w, r, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	if err := s.auth.Authenticate(username, password); err != nil {
		s.log.Warn("login failed", zap.String("request_id", RequestID(r.Context())), zap.String("user", username))
		s.unauthorized(w, r, "Incorrect username or password")
		return
	}

	token, expiresIn, err := s.auth.Issue(username)
	if err != nil {
		s.log.Error("issue token", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.log.Info("token issued", zap.String("request_id", RequestID(r.Context())), zap.String("user", username))
	w.Header().Set("Cache-Control", "no-store")
	s.writeJSON(w, r, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer", ExpiresIn: expiresIn})
}

type PositionView struct {
	Symbol        string  `json:"symbol"`
	SecType       string  `json:"secType"`
	Exchange      string  `json:"exchange"`
	Currency      string  `json:"currency"`
	Position      float64 `json:"position"`
	MarketPrice   float64 `json:"marketPrice"`
	MarketValue   float64 `json:"marketValue"`
	AverageCost   float64 `json:"averageCost"`
	UnrealizedPNL float64 `json:"unrealizedPNL"`
	RealizedPNL   float64 `json:"realizedPNL"`
}

type BalanceResponse struct {
	AccountID    string                         `json:"account_id"`
	LastUpdate   string                         `json:"last_update"`
	Connected    bool                           `json:"connected"`
	TradingMode  string                         `json:"trading_mode"`
	Summary      map[string]models.AccountValue `json:"summary"`
	CashBalances map[string]string              `json:"cash_balances"`
	Positions    []PositionView                 `json:"positions"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if !s.requireConnected(w, r) {
		return
	}
	snap := s.gw.Snapshot()

	positions := make([]PositionView, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		positions = append(positions, PositionView{
			Symbol:        p.Symbol,
			SecType:       p.SecType,
			Exchange:      p.Exchange,
			Currency:      p.Currency,
			Position:      p.Quantity.InexactFloat64(),
			MarketPrice:   p.MarketPrice,
			MarketValue:   p.MarketValue,
			AverageCost:   p.AverageCost,
			UnrealizedPNL: p.UnrealizedPnL,
			RealizedPNL:   p.RealizedPnL,
		})
	}

	s.writeJSON(w, r, http.StatusOK, BalanceResponse{
		AccountID:    snap.AccountID,
		LastUpdate:   snap.LastUpdate,
		Connected:    snap.Connected,
		TradingMode:  s.gw.TradingMode(),
		Summary:      account.Headline(snap.Values),
		CashBalances: snap.CashBalances,
		Positions:    positions,
	})
}

// NumericValue is a headline metric as a number. Missing or malformed
// values read as zero USD.
type NumericValue struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

type SummaryResponse struct {
	AccountID      string       `json:"account_id"`
	TradingMode    string       `json:"trading_mode"`
	LastUpdate     string       `json:"last_update"`
	NetLiquidation NumericValue `json:"net_liquidation"`
	TotalCashValue NumericValue `json:"total_cash_value"`
	BuyingPower    NumericValue `json:"buying_power"`
	AvailableFunds NumericValue `json:"available_funds"`
	UnrealizedPnL  NumericValue `json:"unrealized_pnl"`
	RealizedPnL    NumericValue `json:"realized_pnl"`
	PositionCount  int          `json:"position_count"`
}

func numeric(headline map[string]models.AccountValue, metric string) NumericValue {
	v, ok := headline[metric]
	if !ok {
		return NumericValue{Currency: "USD"}
	}
	d, err := decimal.NewFromString(v.Value)
	if err != nil {
		return NumericValue{Currency: "USD"}
	}
	currency := v.Currency
	if currency == "" {
		currency = "USD"
	}
	return NumericValue{Value: d.InexactFloat64(), Currency: currency}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !s.requireConnected(w, r) {
		return
	}
	snap := s.gw.Snapshot()
	headline := account.Headline(snap.Values)

	s.writeJSON(w, r, http.StatusOK, SummaryResponse{
		AccountID:      snap.AccountID,
		TradingMode:    s.gw.TradingMode(),
		LastUpdate:     snap.LastUpdate,
		NetLiquidation: numeric(headline, models.NetLiquidation),
		TotalCashValue: numeric(headline, models.TotalCashValue),
		BuyingPower:    numeric(headline, models.BuyingPower),
		AvailableFunds: numeric(headline, models.AvailableFunds),
		UnrealizedPnL:  numeric(headline, models.UnrealizedPnL),
		RealizedPnL:    numeric(headline, models.RealizedPnL),
		PositionCount:  len(snap.Positions),
	})
}

// GatewayStatusResponse is the authenticated view of the connection,
// including the text of the last gateway error.
type GatewayStatusResponse struct {
	State         string  `json:"state"`
	Connected     bool    `json:"connected"`
	AccountReady  bool    `json:"account_ready"`
	AccountID     *string `json:"account_id"`
	TradingMode   string  `json:"trading_mode"`
	GatewayHost   string  `json:"gateway_host"`
	GatewayPort   int     `json:"gateway_port"`
	LastError     *string `json:"last_error"`
	LastErrorCode *int    `json:"last_error_code"`
	ErrorCount    uint64  `json:"error_count"`
}

func (s *Server) handleGatewayStatus(w http.ResponseWriter, r *http.Request) {
	st := s.gw.Status()
	resp := GatewayStatusResponse{
		State:        st.State,
		Connected:    st.Connected,
		AccountReady: st.AccountReady,
		TradingMode:  st.TradingMode,
		GatewayHost:  st.GatewayHost,
		GatewayPort:  st.GatewayPort,
		ErrorCount:   st.ErrorCount,
	}
	if st.AccountID != "" {
		resp.AccountID = &st.AccountID
	}
	if st.HasError() {
		resp.LastError = &st.LastError
		resp.LastErrorCode = &st.LastErrorCode
	}
	s.log.Debug("gateway status", zap.String("request_id", RequestID(r.Context())), zap.String("user", subject(r.Context())))
	s.writeJSON(w, r, http.StatusOK, resp)
}
