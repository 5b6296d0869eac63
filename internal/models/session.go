package models

// ConnectionStatus is the health view of the gateway connection.
type ConnectionStatus struct {
	State         string
	Connected     bool
	AccountReady  bool
	AccountID     string // empty when no account has been seen yet
	LastError     string // sticky until the next error or a fresh connect
	LastErrorCode int
	ErrorCount    uint64

	TradingMode string
	GatewayHost string
	GatewayPort int
}

func (s ConnectionStatus) HasError() bool { return s.LastError != "" }
