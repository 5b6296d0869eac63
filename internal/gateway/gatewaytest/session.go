// Package gatewaytest provides a scripted in-memory gateway session.
package gatewaytest

import (
	"context"
	"sync"

	"ib_api/internal/gateway"
)

var _ gateway.Session = (*Session)(nil)

// Session is a gateway.Session driven by the test: events are queued with
// Push and handed out by Next in order.
type Session struct {
	// AckOnConnect queues a NextValidID event on every successful Connect.
	AckOnConnect bool
	// ConnectErr, when set, is returned by Connect.
	ConnectErr error
	// CommandErr, when set, is returned by ReqAccountUpdates and Disconnect.
	CommandErr error

	events chan gateway.Event

	mu            sync.Mutex
	closed        chan struct{}
	live          bool
	connects      int
	disconnects   int
	subscriptions []bool
}

func NewSession() *Session {
	closed := make(chan struct{})
	close(closed)
	return &Session{
		AckOnConnect: true,
		events:       make(chan gateway.Event, 1024),
		closed:       closed,
	}
}

func (s *Session) Connect(_ context.Context, _ string, _, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if s.ConnectErr != nil {
		return s.ConnectErr
	}
	s.live = true
	s.closed = make(chan struct{})
	if s.AckOnConnect {
		s.events <- gateway.NextValidID{OrderID: 1}
	}
	return nil
}

// Push queues events for Next.
func (s *Session) Push(evs ...gateway.Event) {
	for _, ev := range evs {
		s.events <- ev
	}
}

func (s *Session) Next() (gateway.Event, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	// queued events win over a closed stream
	select {
	case ev := <-s.events:
		return ev, nil
	default:
	}

	select {
	case ev := <-s.events:
		return ev, nil
	case <-closed:
		return nil, gateway.ErrClosed
	}
}

func (s *Session) ReqAccountUpdates(subscribe bool, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions = append(s.subscriptions, subscribe)
	return s.CommandErr
}

func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	s.live = false
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return s.CommandErr
}

// SetLive overrides what IsConnected reports without touching the stream.
func (s *Session) SetLive(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = v
}

// Drop ends the stream as a lost connection would: a ConnectionClosed event
// followed by ErrClosed.
func (s *Session) Drop() {
	s.events <- gateway.ConnectionClosed{}
	s.End()
}

// End closes the stream without a ConnectionClosed event.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = false
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *Session) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *Session) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

// Subscriptions returns the subscribe flags passed to ReqAccountUpdates, in order.
func (s *Session) Subscriptions() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bool, len(s.subscriptions))
	copy(out, s.subscriptions)
	return out
}
