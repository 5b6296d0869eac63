package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Connector is the part of the supervisor the watchdog drives.
type Connector interface {
	IsConnected() bool
	Start(ctx context.Context) error
}

// Watchdog calls Start whenever the connection is found down. The
// supervisor makes a single attempt per Start; retrying is up to the caller.
type Watchdog struct {
	conn     Connector
	interval time.Duration
	log      *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewWatchdog(conn Connector, interval time.Duration, log *zap.Logger) *Watchdog {
	return &Watchdog{
		conn:     conn,
		interval: interval,
		log:      log.Named("watchdog"),
	}
}

// Run starts the check loop. A non-positive interval disables it.
func (w *Watchdog) Run() {
	if w.interval <= 0 || w.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx)
}

func (w *Watchdog) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.conn.IsConnected() {
				continue
			}
			w.log.Info("gateway down, reconnecting")
			if err := w.conn.Start(ctx); err != nil {
				w.log.Warn("reconnect failed", zap.Error(err))
			}
		}
	}
}

// Stop cancels an in-flight attempt and waits for the loop to exit.
func (w *Watchdog) Stop() {
	if w.done == nil {
		return
	}
	w.cancel()
	<-w.done
}
