package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ib_api/internal/models"
	"ib_api/pkg/db"
)

const createTable = `
CREATE TABLE IF NOT EXISTS account_snapshots (
	id              BIGSERIAL PRIMARY KEY,
	taken_at        TIMESTAMPTZ NOT NULL,
	account_id      TEXT NOT NULL,
	trading_mode    TEXT NOT NULL,
	last_update     TEXT NOT NULL,
	net_liquidation NUMERIC,
	metrics         JSONB NOT NULL,
	cash_balances   JSONB NOT NULL,
	position_count  INTEGER NOT NULL
)`

const createIndex = `
CREATE INDEX IF NOT EXISTS account_snapshots_account_taken_idx
	ON account_snapshots (account_id, taken_at DESC)`

const insertSnapshot = `
INSERT INTO account_snapshots
	(taken_at, account_id, trading_mode, last_update, net_liquidation, metrics, cash_balances, position_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Source is what the archiver reads from the supervisor.
type Source interface {
	Status() models.ConnectionStatus
	Summary() models.Summary
}

// Row is one archived summary.
type Row struct {
	TakenAt     time.Time
	AccountID   string
	TradingMode string
	LastUpdate  string
	// NetLiquidation is null when the account reported no parseable value.
	NetLiquidation decimal.NullDecimal
	Metrics        []byte
	CashBalances   []byte
	PositionCount  int
}

func BuildRow(s models.Summary, mode string, at time.Time) (Row, error) {
	metrics, err := sonic.Marshal(s.Metrics)
	if err != nil {
		return Row{}, fmt.Errorf("encode metrics: %w", err)
	}
	cash := s.CashBalances
	if cash == nil {
		cash = map[string]string{}
	}
	cashJSON, err := sonic.Marshal(cash)
	if err != nil {
		return Row{}, fmt.Errorf("encode cash balances: %w", err)
	}
	var nlv decimal.NullDecimal
	if v, ok := s.Metrics[models.NetLiquidation]; ok {
		if d, err := decimal.NewFromString(v.Value); err == nil {
			nlv = decimal.NewNullDecimal(d)
		}
	}
	return Row{
		TakenAt:        at.UTC(),
		AccountID:      s.AccountID,
		TradingMode:    mode,
		LastUpdate:     s.LastUpdate,
		NetLiquidation: nlv,
		Metrics:        metrics,
		CashBalances:   cashJSON,
		PositionCount:  s.PositionCount,
	}, nil
}

// Archiver periodically stores the account summary while the account is
// ready.
type Archiver struct {
	tx       db.TxManager
	src      Source
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewArchiver(tx db.TxManager, src Source, interval time.Duration, log *zap.Logger) *Archiver {
	return &Archiver{
		tx:       tx,
		src:      src,
		interval: interval,
		log:      log.Named("archive"),
		now:      time.Now,
	}
}

func (a *Archiver) Migrate(ctx context.Context) error {
	return a.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createTable); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		if _, err := tx.Exec(ctx, createIndex); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		return nil
	})
}

// Record stores one summary. It reports false when the account was not
// ready and nothing was written.
func (a *Archiver) Record(ctx context.Context) (bool, error) {
	st := a.src.Status()
	if !st.Connected || !st.AccountReady {
		return false, nil
	}

	row, err := BuildRow(a.src.Summary(), st.TradingMode, a.now())
	if err != nil {
		return false, err
	}
	if row.AccountID == "" {
		return false, nil
	}

	_, err = a.tx.Conn().Exec(ctx, insertSnapshot,
		row.TakenAt, row.AccountID, row.TradingMode, row.LastUpdate, row.NetLiquidation,
		string(row.Metrics), string(row.CashBalances), row.PositionCount,
	)
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}
	return true, nil
}

func (a *Archiver) Run() {
	if a.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})

	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := a.Record(ctx)
				switch {
				case err != nil:
					a.log.Error("record snapshot", zap.Error(err))
				case ok:
					a.log.Debug("snapshot recorded")
				}
			}
		}
	}()
}

func (a *Archiver) Stop() {
	if a.done == nil {
		return
	}
	a.cancel()
	<-a.done
}
