package gateway

import "ib_api/internal/models"

// Handler is the callback sink a session's events are delivered to.
type Handler interface {
	ConnectAck()
	NextValidID(orderID int64)
	UpdateAccountValue(key, value, currency, account string)
	UpdatePortfolio(p models.Position, account string)
	UpdateAccountTime(timestamp string)
	AccountDownloadEnd(account string)
	ConnectionClosed()
	Error(reqID int64, code int, msg string)
}

// Dispatch invokes the Handler method matching ev. Unknown events are dropped.
func Dispatch(ev Event, h Handler) {
	switch e := ev.(type) {
	case ConnectAck:
		h.ConnectAck()
	case NextValidID:
		h.NextValidID(e.OrderID)
	case AccountValueUpdate:
		h.UpdateAccountValue(e.Key, e.Value, e.Currency, e.Account)
	case PortfolioUpdate:
		h.UpdatePortfolio(e.Position, e.Account)
	case AccountTimeUpdate:
		h.UpdateAccountTime(e.Timestamp)
	case AccountDownloadEnd:
		h.AccountDownloadEnd(e.Account)
	case ConnectionClosed:
		h.ConnectionClosed()
	case ErrorNotice:
		h.Error(e.ReqID, e.Code, e.Message)
	}
}
