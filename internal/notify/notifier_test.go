package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"ib_api/internal/models"
)

type fakeBot struct {
	mu   sync.Mutex
	sent []tgbot.MessageConfig
	err  error
}

func (b *fakeBot) Send(c tgbot.Chattable) (tgbot.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbot.MessageConfig); ok {
		b.sent = append(b.sent, m)
	}
	return tgbot.Message{}, b.err
}

func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.sent))
	for _, m := range b.sent {
		out = append(out, m.Text)
	}
	return out
}

type fakeSource struct {
	status  models.ConnectionStatus
	summary models.Summary
}

func (f fakeSource) Status() models.ConnectionStatus { return f.status }
func (f fakeSource) Summary() models.Summary         { return f.summary }

func TestTelegramDeliversInOrder(t *testing.T) {
	bot := &fakeBot{}
	tg := newTelegram(bot, 42, zaptest.NewLogger(t))
	require.NoError(t, tg.Start(context.Background()))

	tg.Send("one")
	tg.Sendf("two %d", 2)
	tg.Stop()

	assert.Equal(t, []string{"one", "two 2"}, bot.texts())
	bot.mu.Lock()
	assert.EqualValues(t, 42, bot.sent[0].ChatID)
	bot.mu.Unlock()

	tg.Send("after stop")
	assert.Len(t, bot.texts(), 2)
}

func TestTelegramSendNeverBlocks(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	tg := newTelegram(&fakeBot{}, 42, zap.New(core))

	// not started: nothing drains the queue
	for i := 0; i < queueSize+5; i++ {
		tg.Send("x")
	}
	assert.Equal(t, 5, logs.FilterMessage("queue full, alert dropped").Len())
	tg.Stop()
}

func TestTelegramSendErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	tg := newTelegram(&fakeBot{err: errors.New("forbidden")}, 42, zap.New(core))
	require.NoError(t, tg.Start(context.Background()))

	tg.Send("hello")
	tg.Stop()
	assert.Equal(t, 1, logs.FilterMessage("send failed").Len())
}

func TestTelegramWithoutChatIsSilent(t *testing.T) {
	bot := &fakeBot{}
	tg := newTelegram(bot, 0, zaptest.NewLogger(t))
	require.NoError(t, tg.Start(context.Background()))
	tg.Send("hello")
	tg.Stop()
	assert.Empty(t, bot.texts())
}

func TestHandleCommand(t *testing.T) {
	tg := newTelegram(&fakeBot{}, 42, zaptest.NewLogger(t))
	assert.Empty(t, tg.handleCommand("status"), "no source attached")

	src := fakeSource{
		status: models.ConnectionStatus{
			State: "connected", Connected: true, AccountReady: true, AccountID: "DU1",
			TradingMode: "paper", GatewayHost: "ib-gateway", GatewayPort: 4004,
			LastError: "Error 502: boom", LastErrorCode: 502,
		},
		summary: models.Summary{
			AccountID:  "DU1",
			LastUpdate: "10:00",
			Metrics: map[string]models.AccountValue{
				models.NetLiquidation: {Value: "1000", Currency: "USD"},
				models.BuyingPower:    {Value: "4000", Currency: "USD"},
			},
			CashBalances:  map[string]string{"USD": "500", "EUR": "20"},
			PositionCount: 3,
		},
	}
	tg.Attach(src)

	status := tg.handleCommand("status")
	assert.Contains(t, status, "🟢 Gateway ib-gateway:4004 (paper): connected")
	assert.Contains(t, status, "Account: DU1, ready=true")
	assert.Contains(t, status, "Last error: Error 502: boom")

	balance := tg.handleCommand("balance")
	assert.Equal(t, "📊 DU1 @ 10:00\n"+
		"- NetLiquidation: 1000 USD\n"+
		"- BuyingPower: 4000 USD\n"+
		"- Cash EUR: 20\n"+
		"- Cash USD: 500\n"+
		"Positions: 3", balance)

	assert.Empty(t, tg.handleCommand("start"))

	src.status.Connected = false
	tg.Attach(src)
	assert.Equal(t, "❗️ Not connected to IB Gateway", tg.handleCommand("balance"))
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLog(zap.New(core))
	n.Sendf("lost %s", "gateway")

	entries := logs.FilterMessage("alert").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "lost gateway", entries[0].ContextMap()["msg"])
}
