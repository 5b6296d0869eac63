package models

import "github.com/shopspring/decimal"

// PosKey identifies a position in the portfolio. Currency and exchange are
// deliberately not part of it.
type PosKey struct {
	Symbol  string
	SecType string // STK, OPT, FUT, CASH ...
}

// Position is one open portfolio line as streamed by the gateway.
type Position struct {
	Symbol        string
	SecType       string
	Exchange      string
	Currency      string
	Quantity      decimal.Decimal
	MarketPrice   float64
	MarketValue   float64
	AverageCost   float64
	UnrealizedPnL float64
	RealizedPnL   float64
}

func (p Position) Key() PosKey {
	return PosKey{Symbol: p.Symbol, SecType: p.SecType}
}

// Closed reports whether the update describes a position that no longer exists.
func (p Position) Closed() bool {
	return p.Quantity.IsZero()
}
