package service

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"ib_api/internal/models"
)

const namespace = "ib"

var _ prometheus.Collector = (*Collector)(nil)

// Collector exports the gateway connection and the cached account as
// metrics. Values are read from a fresh snapshot on every scrape.
type Collector struct {
	gw GatewayView

	connected     *prometheus.Desc
	accountReady  *prometheus.Desc
	errors        *prometheus.Desc
	accountValue  *prometheus.Desc
	cashBalance   *prometheus.Desc
	positions     *prometheus.Desc
	positionQty   *prometheus.Desc
	positionValue *prometheus.Desc
}

func NewCollector(gw GatewayView) *Collector {
	return &Collector{
		gw: gw,
		connected: prometheus.NewDesc(namespace+"_gateway_connected",
			"1 when the gateway session is connected.", []string{"trading_mode"}, nil),
		accountReady: prometheus.NewDesc(namespace+"_account_ready",
			"1 once the initial account download has completed.", nil, nil),
		errors: prometheus.NewDesc(namespace+"_gateway_errors_total",
			"Operational errors reported by the gateway.", nil, nil),
		accountValue: prometheus.NewDesc(namespace+"_account_value",
			"Headline account values.", []string{"metric", "currency"}, nil),
		cashBalance: prometheus.NewDesc(namespace+"_account_cash_balance",
			"Non-zero cash balance per currency.", []string{"currency"}, nil),
		positions: prometheus.NewDesc(namespace+"_positions",
			"Number of open positions.", nil, nil),
		positionQty: prometheus.NewDesc(namespace+"_position_quantity",
			"Position size.", []string{"symbol", "sec_type"}, nil),
		positionValue: prometheus.NewDesc(namespace+"_position_market_value",
			"Position market value.", []string{"symbol", "sec_type", "currency"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connected
	ch <- c.accountReady
	ch <- c.errors
	ch <- c.accountValue
	ch <- c.cashBalance
	ch <- c.positions
	ch <- c.positionQty
	ch <- c.positionValue
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.gw.Status()
	snap := c.gw.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, boolFloat(st.Connected), st.TradingMode)
	ch <- prometheus.MustNewConstMetric(c.accountReady, prometheus.GaugeValue, boolFloat(st.AccountReady))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(st.ErrorCount))

	for _, metric := range models.SummaryMetrics {
		for _, v := range snap.Values[metric] {
			f, err := strconv.ParseFloat(v.Value, 64)
			if err != nil {
				continue
			}
			ch <- prometheus.MustNewConstMetric(c.accountValue, prometheus.GaugeValue, f, metric, v.Currency)
		}
	}

	for currency, raw := range snap.CashBalances {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.cashBalance, prometheus.GaugeValue, f, currency)
	}

	ch <- prometheus.MustNewConstMetric(c.positions, prometheus.GaugeValue, float64(len(snap.Positions)))
	for _, p := range snap.Positions {
		ch <- prometheus.MustNewConstMetric(c.positionQty, prometheus.GaugeValue, p.Quantity.InexactFloat64(), p.Symbol, p.SecType)
		ch <- prometheus.MustNewConstMetric(c.positionValue, prometheus.GaugeValue, p.MarketValue, p.Symbol, p.SecType, p.Currency)
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
