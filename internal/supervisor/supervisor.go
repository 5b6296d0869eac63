// Package supervisor owns the gateway connection: it connects with a timeout,
// runs the goroutine that drains the session's callback stream into the
// account cache, and tears everything down again.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"ib_api/internal/account"
	"ib_api/internal/gateway"
	"ib_api/internal/models"
)

var _ gateway.Handler = (*Supervisor)(nil)

var (
	// ErrConnectTimeout is returned by Start when the gateway does not complete
	// the handshake within Config.ConnectTimeout.
	ErrConnectTimeout = errors.New("gateway: connect timeout")
	// ErrHandshakeAborted is returned by Start when the stream ends before the
	// handshake completes.
	ErrHandshakeAborted = errors.New("gateway: connection closed during handshake")
	// ErrStartAborted is returned by Start when Stop is called before the
	// handshake completes.
	ErrStartAborted = errors.New("gateway: start aborted by stop")
)

type Config struct {
	Host        string
	Port        int
	ClientID    int
	TradingMode string

	ConnectTimeout time.Duration
	StopTimeout    time.Duration
}

// Notifier receives operator-facing alerts. Implementations must not block.
type Notifier interface {
	Sendf(format string, args ...any)
}

type Supervisor struct {
	cfg      Config
	session  gateway.Session
	cache    *account.Cache
	notifier Notifier
	log      *zap.Logger

	lifecycle sync.Mutex // serializes Start and Stop

	mu            sync.Mutex
	state         State
	lastError     string
	lastErrorCode int
	ack           chan struct{}      // closed by NextValidID during Start
	abort         context.CancelFunc // cancels the Start attempt in flight
	quit          chan struct{}
	done          chan struct{} // closed when the pump returns

	errCount atomic.Uint64
}

func New(cfg Config, session gateway.Session, cache *account.Cache, notifier Notifier, log *zap.Logger) *Supervisor {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	return &Supervisor{
		cfg:      cfg,
		session:  session,
		cache:    cache,
		notifier: notifier,
		log:      log.Named("supervisor"),
	}
}

func (s *Supervisor) running() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Start connects to the gateway and blocks until the handshake completes,
// ConnectTimeout elapses or ctx is done. It is a no-op while the event pump
// is running, unless the connection was lost.
func (s *Supervisor) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	// a lost connection's pump is on its way out; stopLocked joins it below
	if s.running() && s.state != ConnectionLost {
		s.mu.Unlock()
		s.log.Warn("already running")
		return nil
	}
	stale := s.done != nil || s.state != Idle
	s.mu.Unlock()

	// the previous pump ended on its own; clean up before reconnecting
	if stale {
		s.stopLocked()
	}

	s.log.Info("connecting to gateway",
		zap.String("host", s.cfg.Host),
		zap.Int("port", s.cfg.Port),
		zap.Int("client_id", s.cfg.ClientID),
		zap.String("mode", s.cfg.TradingMode),
	)

	s.cache.Reset()
	attempt, abort := context.WithCancel(ctx)
	defer abort()
	ack := make(chan struct{})
	s.mu.Lock()
	s.state = Connecting
	s.ack = ack
	s.abort = abort
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.abort = nil
		s.mu.Unlock()
	}()

	if err := s.session.Connect(attempt, s.cfg.Host, s.cfg.Port, s.cfg.ClientID); err != nil {
		s.log.Error("connect failed", zap.Error(err))
		s.mu.Lock()
		s.state = Idle
		s.ack = nil
		s.lastError = fmt.Sprintf("connect: %v", err)
		s.lastErrorCode = 0
		s.mu.Unlock()
		if ctx.Err() == nil && attempt.Err() != nil {
			return ErrStartAborted
		}
		return errors.Wrap(err, "connect to gateway")
	}

	quit := make(chan struct{})
	done := make(chan struct{})
	s.mu.Lock()
	s.quit = quit
	s.done = done
	s.mu.Unlock()
	go s.pump(quit, done)

	timer := time.NewTimer(s.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-ack:
	case <-timer.C:
		s.log.Error("connect timeout, gateway did not respond", zap.Duration("timeout", s.cfg.ConnectTimeout))
		s.stopLocked()
		return ErrConnectTimeout
	case <-done:
		s.stopLocked()
		return ErrHandshakeAborted
	case <-attempt.Done():
		s.stopLocked()
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "connect to gateway")
		}
		s.log.Info("start aborted during handshake")
		return ErrStartAborted
	}

	s.mu.Lock()
	if s.state != Connecting {
		// ConnectionClosed raced the acknowledgement
		s.mu.Unlock()
		s.stopLocked()
		return ErrHandshakeAborted
	}
	s.state = Connected
	s.lastError = ""
	s.lastErrorCode = 0
	s.mu.Unlock()
	s.cache.SetConnected(true)

	s.log.Info("connected to gateway")
	if s.notifier != nil {
		s.notifier.Sendf("✅ Connected to IB Gateway %s:%d (%s)", s.cfg.Host, s.cfg.Port, s.cfg.TradingMode)
	}

	if err := s.session.ReqAccountUpdates(true, ""); err != nil {
		s.log.Error("subscribe to account updates", zap.Error(err))
		s.recordError(0, fmt.Sprintf("subscribe account updates: %v", err))
	}
	return nil
}

// Stop unsubscribes, disconnects and waits up to StopTimeout for the pump to
// exit. A Start still waiting for the handshake is aborted first. Failures
// are logged, never returned. Safe to call at any time.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	abort := s.abort
	s.mu.Unlock()
	if abort != nil {
		abort()
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stopLocked()
}

func (s *Supervisor) stopLocked() {
	s.mu.Lock()
	if s.state == Idle && s.done == nil {
		s.mu.Unlock()
		return
	}
	quit, done := s.quit, s.done
	s.state = Disconnecting
	s.quit = nil
	s.ack = nil
	s.mu.Unlock()

	s.log.Info("stopping")

	var result error
	if s.session.IsConnected() {
		if err := s.session.ReqAccountUpdates(false, ""); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "unsubscribe account updates"))
		}
	}
	if quit != nil {
		close(quit)
	}
	if err := s.session.Disconnect(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "disconnect"))
	}
	if result != nil {
		s.log.Error("error during disconnect", zap.Error(result))
	}

	if done != nil {
		timer := time.NewTimer(s.cfg.StopTimeout)
		select {
		case <-done:
		case <-timer.C:
			s.log.Warn("event pump did not exit in time", zap.Duration("timeout", s.cfg.StopTimeout))
		}
		timer.Stop()
	}

	s.cache.Reset()

	s.mu.Lock()
	s.state = Idle
	s.done = nil
	s.mu.Unlock()
	s.log.Info("stopped")
}

// pump drains the session until the stream ends or quit is closed. All
// callbacks, and therefore all cache writes, happen on this goroutine.
func (s *Supervisor) pump(quit <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer s.streamEnded(done)

	for {
		ev, err := s.session.Next()
		if err != nil {
			if !errors.Is(err, gateway.ErrClosed) {
				s.log.Warn("gateway stream ended", zap.Error(err))
			}
			return
		}
		select {
		case <-quit:
			return
		default:
		}
		gateway.Dispatch(ev, s)
	}
}

func (s *Supervisor) streamEnded(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return
	}
	if s.state == Connected || s.state == Connecting {
		s.state = ConnectionLost
		s.cache.SetConnected(false)
	}
}

func (s *Supervisor) recordError(code int, msg string) {
	s.errCount.Add(1)
	s.mu.Lock()
	s.lastError = msg
	s.lastErrorCode = code
	s.mu.Unlock()
}

// IsConnected is true only in the Connected state and while the session
// itself reports a live transport.
func (s *Supervisor) IsConnected() bool {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	return st == Connected && s.session.IsConnected()
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ErrorCount is the number of operational errors seen since start-up.
func (s *Supervisor) ErrorCount() uint64 {
	return s.errCount.Load()
}

func (s *Supervisor) Status() models.ConnectionStatus {
	connected := s.IsConnected()

	s.mu.Lock()
	st := models.ConnectionStatus{
		State:         s.state.String(),
		LastError:     s.lastError,
		LastErrorCode: s.lastErrorCode,
	}
	s.mu.Unlock()

	st.Connected = connected
	st.AccountReady = s.cache.Ready()
	st.AccountID = s.cache.AccountID()
	st.ErrorCount = s.ErrorCount()
	st.TradingMode = s.cfg.TradingMode
	st.GatewayHost = s.cfg.Host
	st.GatewayPort = s.cfg.Port
	return st
}

func (s *Supervisor) Snapshot() models.AccountSnapshot {
	snap := s.cache.Snapshot()
	snap.Connected = snap.Connected && s.IsConnected()
	return snap
}

func (s *Supervisor) Summary() models.Summary {
	return s.cache.Summary()
}

func (s *Supervisor) TradingMode() string { return s.cfg.TradingMode }
