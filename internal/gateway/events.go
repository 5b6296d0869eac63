package gateway

import "ib_api/internal/models"

// Event is one callback delivered by the gateway session, in stream order.
type Event interface {
	isEvent()
}

// ConnectAck is sent as soon as the gateway accepts the socket.
type ConnectAck struct{}

// NextValidID is the first message after a completed handshake; the session
// is usable once it arrives.
type NextValidID struct {
	OrderID int64
}

type AccountValueUpdate struct {
	Key      string
	Value    string
	Currency string
	Account  string
}

type PortfolioUpdate struct {
	Position models.Position
	Account  string
}

type AccountTimeUpdate struct {
	Timestamp string
}

// AccountDownloadEnd marks the end of the initial full account push.
type AccountDownloadEnd struct {
	Account string
}

type ConnectionClosed struct{}

// ErrorNotice multiplexes real errors and informational notices; only Code
// tells them apart.
type ErrorNotice struct {
	ReqID   int64
	Code    int
	Message string
}

func (ConnectAck) isEvent()         {}
func (NextValidID) isEvent()        {}
func (AccountValueUpdate) isEvent() {}
func (PortfolioUpdate) isEvent()    {}
func (AccountTimeUpdate) isEvent()  {}
func (AccountDownloadEnd) isEvent() {}
func (ConnectionClosed) isEvent()   {}
func (ErrorNotice) isEvent()        {}
