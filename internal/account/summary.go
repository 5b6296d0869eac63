package account

import (
	"github.com/shopspring/decimal"

	"ib_api/internal/models"
)

const (
	currencyUSD  = "USD"
	currencyBase = "BASE"
)

// Resolve picks the entry of one metric to report: USD first, then BASE,
// then the first entry with a currency at all.
func Resolve(entries []models.AccountValue) (models.AccountValue, bool) {
	for _, want := range []string{currencyUSD, currencyBase} {
		for _, e := range entries {
			if e.Currency == want {
				return e, true
			}
		}
	}
	for _, e := range entries {
		if e.Currency != "" {
			return e, true
		}
	}
	return models.AccountValue{}, false
}

// Headline resolves every summary metric present in values.
func Headline(values models.AccountValues) map[string]models.AccountValue {
	out := make(map[string]models.AccountValue, len(models.SummaryMetrics))
	for _, metric := range models.SummaryMetrics {
		if v, ok := Resolve(values[metric]); ok {
			out[metric] = v
		}
	}
	return out
}

// CashBalances returns the CashBalance entries that carry a currency and are
// not zero. Values that do not parse are kept as they are.
func CashBalances(values models.AccountValues) map[string]string {
	out := make(map[string]string)
	for _, e := range values[models.CashBalance] {
		if e.Currency == "" {
			continue
		}
		if d, err := decimal.NewFromString(e.Value); err == nil && d.IsZero() {
			continue
		}
		out[e.Currency] = e.Value
	}
	return out
}
