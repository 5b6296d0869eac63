package gateway

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"ib_api/internal/models"
)

type recorder struct{ calls []string }

func (r *recorder) ConnectAck() { r.add("ack") }
func (r *recorder) NextValidID(id int64) { r.add("nextValidId %d", id) }
func (r *recorder) UpdateAccountTime(ts string) { r.add("time %s", ts) }
func (r *recorder) AccountDownloadEnd(a string) { r.add("end %s", a) }
func (r *recorder) ConnectionClosed() { r.add("closed") }

func (r *recorder) UpdateAccountValue(key, value, currency, account string) {
	r.add("value %s=%s %s %s", key, value, currency, account)
}

func (r *recorder) UpdatePortfolio(p models.Position, account string) {
	r.add("portfolio %s/%s %s", p.Symbol, p.SecType, account)
}

func (r *recorder) Error(reqID int64, code int, msg string) {
	r.add("error %d %d %s", reqID, code, msg)
}

func (r *recorder) add(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func TestDispatch(t *testing.T) {
	var r recorder
	for _, ev := range []Event{
		ConnectAck{},
		NextValidID{OrderID: 3},
		AccountValueUpdate{Key: "BuyingPower", Value: "10", Currency: "USD", Account: "DU1"},
		PortfolioUpdate{Position: models.Position{Symbol: "SPY", SecType: "STK"}, Account: "DU1"},
		AccountTimeUpdate{Timestamp: "09:30"},
		AccountDownloadEnd{Account: "DU1"},
		ErrorNotice{ReqID: 4, Code: 502, Message: "boom"},
		ConnectionClosed{},
		nil,
	} {
		Dispatch(ev, &r)
	}

	assert.Equal(t, []string{
		"ack",
		"nextValidId 3",
		"value BuyingPower=10 USD DU1",
		"portfolio SPY/STK DU1",
		"time 09:30",
		"end DU1",
		"error 4 502 boom",
		"closed",
	}, r.calls)
}

func TestIsInformational(t *testing.T) {
	for _, code := range []int{2104, 2106, 2107, 2158} {
		assert.True(t, IsInformational(code), code)
	}
	for _, code := range []int{0, 502, 504, 1100, 2105, 2110} {
		assert.False(t, IsInformational(code), code)
	}
}
