package gateway

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ib_api/internal/models"
)

var _ Session = (*WSSession)(nil)

const writeWait = 5 * time.Second

// WSSession talks to a gateway bridge that relays the gateway callback stream
// as JSON frames over a WebSocket, one frame per callback.
type WSSession struct {
	dialer *websocket.Dialer
	path   string
	log    *zap.Logger

	mu   sync.Mutex // conn
	conn *websocket.Conn

	writeMu   sync.Mutex // gorilla allows one concurrent writer
	connected atomic.Bool
}

func NewWSSession(path string, log *zap.Logger) *WSSession {
	return &WSSession{
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		path:   path,
		log:    log.Named("gateway.ws"),
	}
}

type command struct {
	Op        string `json:"op"`
	Subscribe bool   `json:"subscribe,omitempty"`
	Account   string `json:"account,omitempty"`
}

// frame is the union of every callback the bridge relays.
type frame struct {
	Type string `json:"type"`

	OrderID int64 `json:"orderId"`

	Key         string `json:"key"`
	Val         string `json:"val"`
	Currency    string `json:"currency"`
	AccountName string `json:"accountName"`

	Contract struct {
		Symbol   string `json:"symbol"`
		SecType  string `json:"secType"`
		Exchange string `json:"exchange"`
		Currency string `json:"currency"`
	} `json:"contract"`
	Position      decimal.Decimal `json:"position"`
	MarketPrice   float64         `json:"marketPrice"`
	MarketValue   float64         `json:"marketValue"`
	AverageCost   float64         `json:"averageCost"`
	UnrealizedPNL float64         `json:"unrealizedPNL"`
	RealizedPNL   float64         `json:"realizedPNL"`

	TimeStamp string `json:"timeStamp"`

	ReqID       int64  `json:"reqId"`
	ErrorCode   int    `json:"errorCode"`
	ErrorString string `json:"errorString"`
}

// Connect dials the bridge at host:port. clientID is passed through so the
// bridge opens the gateway session under that client id.
func (s *WSSession) Connect(ctx context.Context, host string, port, clientID int) error {
	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     s.path,
		RawQuery: url.Values{"clientId": {strconv.Itoa(clientID)}}.Encode(),
	}

	conn, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s", u.Host)
	}

	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.connected.Store(true)
	s.mu.Unlock()

	s.log.Debug("bridge connected", zap.String("url", u.String()))
	return nil
}

func (s *WSSession) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// markLost clears the connected flag if conn is still the session's
// connection. It reports whether the flag was set.
func (s *WSSession) markLost(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return false
	}
	return s.connected.Swap(false)
}

// Next reads frames until one maps to an event. A broken connection yields a
// single ConnectionClosed event; after that, and after Disconnect, ErrClosed.
func (s *WSSession) Next() (Event, error) {
	conn := s.current()
	if conn == nil {
		return nil, ErrClosed
	}
	return s.next(conn)
}

// next reads from conn only. A reader left on a replaced connection ends
// with ErrClosed and never touches the state of the current one.
func (s *WSSession) next(conn *websocket.Conn) (Event, error) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if s.markLost(conn) {
				s.log.Warn("bridge read failed", zap.Error(err))
				return ConnectionClosed{}, nil
			}
			return nil, ErrClosed
		}

		var f frame
		if err := sonic.Unmarshal(msg, &f); err != nil {
			s.log.Warn("bad frame", zap.Error(err), zap.ByteString("frame", msg))
			continue
		}

		ev, ok := f.event()
		if !ok {
			s.log.Debug("frame skipped", zap.String("type", f.Type))
			continue
		}
		if _, closed := ev.(ConnectionClosed); closed {
			s.markLost(conn)
		}
		return ev, nil
	}
}

func (f *frame) event() (Event, bool) {
	switch f.Type {
	case "connectAck":
		return ConnectAck{}, true
	case "nextValidId":
		return NextValidID{OrderID: f.OrderID}, true
	case "updateAccountValue":
		return AccountValueUpdate{Key: f.Key, Value: f.Val, Currency: f.Currency, Account: f.AccountName}, true
	case "updatePortfolio":
		return PortfolioUpdate{
			Position: models.Position{
				Symbol:        f.Contract.Symbol,
				SecType:       f.Contract.SecType,
				Exchange:      f.Contract.Exchange,
				Currency:      f.Contract.Currency,
				Quantity:      f.Position,
				MarketPrice:   f.MarketPrice,
				MarketValue:   f.MarketValue,
				AverageCost:   f.AverageCost,
				UnrealizedPnL: f.UnrealizedPNL,
				RealizedPnL:   f.RealizedPNL,
			},
			Account: f.AccountName,
		}, true
	case "updateAccountTime":
		return AccountTimeUpdate{Timestamp: f.TimeStamp}, true
	case "accountDownloadEnd":
		return AccountDownloadEnd{Account: f.AccountName}, true
	case "connectionClosed":
		return ConnectionClosed{}, true
	case "error":
		return ErrorNotice{ReqID: f.ReqID, Code: f.ErrorCode, Message: f.ErrorString}, true
	}
	return nil, false
}

func (s *WSSession) send(cmd command) error {
	conn := s.current()
	if conn == nil || !s.connected.Load() {
		return ErrNotConnected
	}

	b, err := sonic.Marshal(cmd)
	if err != nil {
		return errors.Wrap(err, "encode command")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return errors.Wrapf(err, "send %s", cmd.Op)
	}
	return nil
}

// ReqAccountUpdates starts or stops the account/portfolio push. An empty
// account selects the logged-in account.
func (s *WSSession) ReqAccountUpdates(subscribe bool, account string) error {
	return s.send(command{Op: "reqAccountUpdates", Subscribe: subscribe, Account: account})
}

// Disconnect asks the bridge to close the gateway session and drops the socket.
// Calling it without a connection is a no-op.
func (s *WSSession) Disconnect() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	var sendErr error
	if s.connected.Swap(false) {
		s.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		b, _ := sonic.Marshal(command{Op: "disconnect"})
		sendErr = conn.WriteMessage(websocket.TextMessage, b)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
	}

	if err := conn.Close(); err != nil {
		return errors.Wrap(err, "close bridge connection")
	}
	return errors.Wrap(sendErr, "send disconnect")
}

func (s *WSSession) IsConnected() bool {
	return s.connected.Load()
}
