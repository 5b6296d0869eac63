package service

import (
	"sync/atomic"
	"time"

	"ib_api/internal/models"
)

// GatewayView is the read side of the gateway supervisor.
type GatewayView interface {
	Status() models.ConnectionStatus
	Snapshot() models.AccountSnapshot
}

type State struct {
	serving   atomic.Bool
	startedAt time.Time

	gw GatewayView
}

func NewState(gw GatewayView) *State {
	s := &State{startedAt: time.Now(), gw: gw}
	s.serving.Store(false)
	return s
}

// SetServing is flipped by the public API server once it is listening.
func (s *State) SetServing(v bool) { s.serving.Store(v) }
func (s *State) Serving() bool     { return s.serving.Load() }

// Ready means the API is up and has account data to serve.
func (s *State) Ready() bool {
	if !s.Serving() {
		return false
	}
	st := s.gw.Status()
	return st.Connected && st.AccountReady
}

func (s *State) Gateway() models.ConnectionStatus { return s.gw.Status() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
