package models

// Account value keys used for the headline summary.
const (
	NetLiquidation     = "NetLiquidation"
	TotalCashValue     = "TotalCashValue"
	BuyingPower        = "BuyingPower"
	AvailableFunds     = "AvailableFunds"
	GrossPositionValue = "GrossPositionValue"
	MaintMarginReq     = "MaintMarginReq"
	UnrealizedPnL      = "UnrealizedPnL"
	RealizedPnL        = "RealizedPnL"
	CashBalance        = "CashBalance"
)

// SummaryMetrics is the fixed, ordered set of headline metrics.
var SummaryMetrics = []string{
	NetLiquidation,
	TotalCashValue,
	BuyingPower,
	AvailableFunds,
	GrossPositionValue,
	MaintMarginReq,
	UnrealizedPnL,
	RealizedPnL,
}

// AccountValue is a single value of an account metric in one currency. The
// value is kept exactly as the gateway delivered it.
type AccountValue struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// AccountValues maps a metric name to its per-currency entries, in the order
// the currencies were first seen.
type AccountValues map[string][]AccountValue

// Set upserts the entry for (metric, currency). An existing entry keeps its slot.
func (v AccountValues) Set(metric, currency, value string) {
	entries := v[metric]
	for i := range entries {
		if entries[i].Currency == currency {
			entries[i].Value = value
			return
		}
	}
	v[metric] = append(entries, AccountValue{Value: value, Currency: currency})
}

// Get returns the value of metric in currency.
func (v AccountValues) Get(metric, currency string) (string, bool) {
	for _, e := range v[metric] {
		if e.Currency == currency {
			return e.Value, true
		}
	}
	return "", false
}

// Clone returns a deep copy.
func (v AccountValues) Clone() AccountValues {
	out := make(AccountValues, len(v))
	for metric, entries := range v {
		cp := make([]AccountValue, len(entries))
		copy(cp, entries)
		out[metric] = cp
	}
	return out
}

// AccountSnapshot is a point-in-time copy of the cached account state.
type AccountSnapshot struct {
	AccountID    string
	LastUpdate   string
	Values       AccountValues
	CashBalances map[string]string
	Positions    []Position
	Connected    bool
	Ready        bool
}

// Summary is the reduced headline view of an account.
type Summary struct {
	AccountID     string
	LastUpdate    string
	Metrics       map[string]AccountValue
	CashBalances  map[string]string
	PositionCount int
}
