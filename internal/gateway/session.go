// Package gateway describes the brokerage gateway session as seen by the
// service: a command sender plus a blocking iterator over its callback stream.
package gateway

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned by Next once the stream has ended.
	ErrClosed = errors.New("gateway: session closed")
	// ErrNotConnected is returned by commands issued without a live connection.
	ErrNotConnected = errors.New("gateway: not connected")
)

// Session is the vendor connection. Next is called from a single goroutine;
// the command methods may be called from any goroutine.
type Session interface {
	Connect(ctx context.Context, host string, port, clientID int) error
	// Next blocks until the next event arrives. It returns ErrClosed after
	// Disconnect or once the stream is exhausted.
	Next() (Event, error)
	ReqAccountUpdates(subscribe bool, account string) error
	Disconnect() error
	// IsConnected reports whether the underlying transport is live.
	IsConnected() bool
}
