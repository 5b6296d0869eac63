package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"ib_api/internal/account"
	"ib_api/internal/gateway"
	"ib_api/internal/models"
	"ib_api/internal/modules/config"
	"ib_api/internal/supervisor"
)

var newSession = func(cfg config.Gateway, log *zap.Logger) gateway.Session {
	return gateway.NewWSSession(cfg.BridgePath, log)
}

func connect(ctx context.Context) (*supervisor.Supervisor, config.Gateway, error) {
	cfg, err := config.NewGatewayConfig()
	if err != nil {
		return nil, cfg, err
	}
	sup := supervisor.New(supervisor.Config{
		Host:           cfg.Host,
		Port:           cfg.Port(),
		ClientID:       cfg.ClientID,
		TradingMode:    cfg.TradingMode,
		ConnectTimeout: cfg.ConnectTimeout,
		StopTimeout:    cfg.StopTimeout,
	}, newSession(cfg, l), account.NewCache(), nil, l)

	if err := sup.Start(ctx); err != nil {
		return nil, cfg, errors.Wrapf(err, "%s:%d", cfg.Host, cfg.Port())
	}
	return sup, cfg, nil
}

func check(c *cli.Context) error {
	sup, cfg, err := connect(c.Context)
	if err != nil {
		return err
	}
	defer sup.Stop()

	fmt.Printf("connected to %s:%d (%s, client %d)\n", cfg.Host, cfg.Port(), cfg.TradingMode, cfg.ClientID)
	return nil
}

func balance(c *cli.Context) error {
	sup, _, err := connect(c.Context)
	if err != nil {
		return err
	}
	defer sup.Stop()

	if err := waitReady(c.Context, sup, c.Duration("wait")); err != nil {
		return err
	}
	printBalance(os.Stdout, sup.TradingMode(), sup.Summary(), sup.Snapshot())
	return nil
}

func waitReady(ctx context.Context, sup *supervisor.Supervisor, wait time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := sup.Status()
		if !st.Connected {
			return errors.New("gateway connection lost")
		}
		if st.AccountReady {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Errorf("account data not ready after %s", wait)
		case <-ticker.C:
		}
	}
}

func printBalance(w io.Writer, mode string, sum models.Summary, snap models.AccountSnapshot) {
	fmt.Fprintf(w, "Account %s (%s), updated %s\n\n", sum.AccountID, mode, sum.LastUpdate)

	tbl := tabwriter.NewWriter(w, 1, 1, 2, ' ', 0)
	for _, metric := range models.SummaryMetrics {
		if v, ok := sum.Metrics[metric]; ok {
			fmt.Fprintf(tbl, "%s\t%s\t%s\n", metric, v.Value, v.Currency)
		}
	}
	tbl.Flush()

	if len(sum.CashBalances) > 0 {
		currencies := make([]string, 0, len(sum.CashBalances))
		for cur := range sum.CashBalances {
			currencies = append(currencies, cur)
		}
		sort.Strings(currencies)

		fmt.Fprintln(w, "\nCash")
		for _, cur := range currencies {
			fmt.Fprintf(tbl, "%s\t%s\n", cur, sum.CashBalances[cur])
		}
		tbl.Flush()
	}

	if len(snap.Positions) > 0 {
		fmt.Fprintln(w, "\nPositions")
		fmt.Fprintln(tbl, "SYMBOL\tTYPE\tQTY\tPRICE\tVALUE\tUNREALIZED")
		for _, p := range snap.Positions {
			fmt.Fprintf(tbl, "%s\t%s\t%s\t%.2f\t%.2f %s\t%.2f\n",
				p.Symbol, p.SecType, p.Quantity.String(), p.MarketPrice, p.MarketValue, p.Currency, p.UnrealizedPnL)
		}
		tbl.Flush()
	}
}
