package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"ib_api/internal/models"
)

const queueSize = 64

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// StatusSource answers the bot's chat commands.
type StatusSource interface {
	Status() models.ConnectionStatus
	Summary() models.Summary
}

type botAPI interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram delivers alerts to one chat from a background goroutine, so
// Send never blocks the caller. It also answers /status and /balance.
type Telegram struct {
	bot    botAPI
	poller *tgbot.BotAPI
	chatID int64
	log    *zap.Logger

	queue   chan string
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
	started atomic.Bool

	mu  sync.RWMutex
	src StatusSource
}

func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	t := newTelegram(b, chatID, log)
	t.poller = b
	return t, nil
}

func newTelegram(bot botAPI, chatID int64, log *zap.Logger) *Telegram {
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		log:    log.Named("telegram"),
		queue:  make(chan string, queueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Attach sets the source for chat commands.
func (t *Telegram) Attach(src StatusSource) {
	t.mu.Lock()
	t.src = src
	t.mu.Unlock()
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.chatID == 0 {
		return
	}
	select {
	case <-t.quit:
		return
	default:
	}
	select {
	case t.queue <- msg:
	default:
		t.log.Warn("queue full, alert dropped", zap.String("msg", msg))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

func (t *Telegram) deliver() {
	defer close(t.done)
	for {
		select {
		case msg := <-t.queue:
			t.post(msg)
		case <-t.quit:
			for {
				select {
				case msg := <-t.queue:
					t.post(msg)
				default:
					return
				}
			}
		}
	}
}

func (t *Telegram) post(msg string) {
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		t.log.Error("send failed", zap.Error(err))
	}
}

// Start runs the delivery goroutine and, for a real bot, long-polls for
// commands from the configured chat.
func (t *Telegram) Start(_ context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return nil
	}
	go t.deliver()

	if t.poller == nil {
		return nil
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.poller.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-t.quit:
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				if upd.Message == nil || upd.Message.Chat == nil ||
					upd.Message.Chat.ID != t.chatID || !upd.Message.IsCommand() {
					continue
				}
				if reply := t.handleCommand(upd.Message.Command()); reply != "" {
					t.Send(reply)
				}
			}
		}
	}()
	return nil
}

// Stop flushes queued alerts and stops polling.
func (t *Telegram) Stop() {
	t.once.Do(func() {
		close(t.quit)
		if t.poller != nil {
			t.poller.StopReceivingUpdates()
		}
	})
	if t.started.Load() {
		<-t.done
	}
}

func (t *Telegram) handleCommand(cmd string) string {
	t.mu.RLock()
	src := t.src
	t.mu.RUnlock()
	if src == nil {
		return ""
	}

	switch cmd {
	case "status":
		return formatStatus(src.Status())
	case "balance":
		st := src.Status()
		if !st.Connected {
			return "❗️ Not connected to IB Gateway"
		}
		return formatSummary(src.Summary())
	}
	return ""
}

func formatStatus(st models.ConnectionStatus) string {
	var b strings.Builder
	icon := "🔴"
	if st.Connected {
		icon = "🟢"
	}
	fmt.Fprintf(&b, "%s Gateway %s:%d (%s): %s\n", icon, st.GatewayHost, st.GatewayPort, st.TradingMode, st.State)
	if st.AccountID != "" {
		fmt.Fprintf(&b, "Account: %s, ready=%t\n", st.AccountID, st.AccountReady)
	}
	if st.HasError() {
		fmt.Fprintf(&b, "Last error: %s\n", st.LastError)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSummary(s models.Summary) string {
	if len(s.Metrics) == 0 {
		return "📭 No account data yet"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s @ %s\n", s.AccountID, s.LastUpdate)
	for _, m := range models.SummaryMetrics {
		v, ok := s.Metrics[m]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s %s\n", m, v.Value, v.Currency)
	}

	currencies := make([]string, 0, len(s.CashBalances))
	for c := range s.CashBalances {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		fmt.Fprintf(&b, "- Cash %s: %s\n", c, s.CashBalances[c])
	}
	fmt.Fprintf(&b, "Positions: %d", s.PositionCount)
	return b.String()
}

// Log writes alerts to the service log when no chat is configured.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log { return &Log{log: log.Named("notify")} }

func (l *Log) Send(msg string)                  { l.log.Info("alert", zap.String("msg", msg)) }
func (l *Log) Sendf(format string, args ...any) { l.Send(fmt.Sprintf(format, args...)) }
