package supervisor

import (
	"fmt"

	"go.uber.org/zap"

	"ib_api/internal/gateway"
	"ib_api/internal/models"
)

// The methods below run on the pump goroutine, in stream order.

func (s *Supervisor) ConnectAck() {
	s.log.Debug("connection acknowledged")
}

// NextValidID completes the handshake and releases a waiting Start.
func (s *Supervisor) NextValidID(orderID int64) {
	s.mu.Lock()
	if s.ack != nil {
		close(s.ack)
		s.ack = nil
	}
	s.mu.Unlock()
	s.log.Info("handshake complete", zap.Int64("next_order_id", orderID))
}

func (s *Supervisor) UpdateAccountValue(key, value, currency, account string) {
	s.cache.ApplyValueUpdate(key, currency, value, account)
}

func (s *Supervisor) UpdatePortfolio(p models.Position, _ string) {
	s.cache.ApplyPositionUpdate(p)
}

func (s *Supervisor) UpdateAccountTime(timestamp string) {
	s.cache.ApplyTimestampUpdate(timestamp)
}

func (s *Supervisor) AccountDownloadEnd(account string) {
	s.cache.MarkAccountReady(account)
	s.log.Info("account download complete", zap.String("account", account))
}

func (s *Supervisor) ConnectionClosed() {
	s.mu.Lock()
	lost := s.state == Connected || s.state == Connecting
	if lost {
		s.state = ConnectionLost
	}
	s.mu.Unlock()

	s.cache.SetConnected(false)
	if !lost {
		return
	}
	s.log.Warn("connection to gateway closed")
	if s.notifier != nil {
		s.notifier.Sendf("⚠️ Connection to IB Gateway %s:%d lost", s.cfg.Host, s.cfg.Port)
	}
}

// Error triages the gateway's error channel. Informational codes are logged
// at debug level; everything else becomes the sticky last error. The pump
// keeps running either way.
func (s *Supervisor) Error(reqID int64, code int, msg string) {
	if gateway.IsInformational(code) {
		s.log.Debug("gateway notice", zap.Int("code", code), zap.String("msg", msg))
		return
	}

	s.log.Error("gateway error", zap.Int64("req_id", reqID), zap.Int("code", code), zap.String("msg", msg))
	s.recordError(code, fmt.Sprintf("Error %d: %s", code, msg))
	if s.notifier != nil {
		s.notifier.Sendf("❗️ IB Gateway error %d: %s", code, msg)
	}
}
