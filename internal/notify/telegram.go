// Package notify pushes trade events to Telegram. Delivery is
// fire-and-forget: a notification failure is logged and never blocks
// or fails the trading path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Gobinathr25/Supertrend/internal/risk"
	"github.com/Gobinathr25/Supertrend/pkg/db"
)

// Telegram sends HTML-formatted messages to one chat.
type Telegram struct {
	BotToken   string
	ChatID     string
	HTTPClient *http.Client
}

// NewTelegram builds a notifier. With empty credentials every send is a
// silent no-op, which keeps paper setups free of configuration.
func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		BotToken:   botToken,
		ChatID:     chatID,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (t *Telegram) enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Send posts one HTML message asynchronously.
func (t *Telegram) Send(text string) {
	if !t.enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.post(ctx, text); err != nil {
			log.Printf("notify: telegram send: %v", err)
		}
	}()
}

func (t *Telegram) post(ctx context.Context, text string) error {
	u := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.BotToken)
	body, err := json.Marshal(map[string]string{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram status %d", res.StatusCode)
	}
	return nil
}

// Entry announces a filled short entry.
func (t *Telegram) Entry(tr db.Trade) {
	kind := "ENTRY"
	if tr.ReentryIndex > 0 {
		kind = fmt.Sprintf("RE-ENTRY #%d", tr.ReentryIndex)
	}
	t.Send(fmt.Sprintf(
		"🔻 <b>%s SOLD (%s)</b>\n<code>%s</code>\nQty: %d\nPrice: %.2f",
		tr.Leg, kind, tr.Symbol, tr.Qty, tr.EntryPrice,
	))
}

// Exit announces a closed trade.
func (t *Telegram) Exit(tr db.Trade) {
	icon := "✅"
	if tr.PnL < 0 {
		icon = "🛑"
	}
	t.Send(fmt.Sprintf(
		"%s <b>%s EXIT (%s)</b>\n<code>%s</code>\nEntry: %.2f → Exit: %.2f\nPnL: %.2f",
		icon, tr.Leg, tr.ExitReason, tr.Symbol, tr.EntryPrice, tr.ExitPrice, tr.PnL,
	))
}

// LegStopped announces that a leg is done for the day.
func (t *Telegram) LegStopped(leg string, reentries int) {
	t.Send(fmt.Sprintf(
		"⛔ <b>%s leg stopped</b> after %d entries. No further trades today.",
		leg, reentries,
	))
}

// RiskAlert announces a risk-gate halt.
func (t *Telegram) RiskAlert(reason string) {
	t.Send(fmt.Sprintf("🚨 <b>Risk halt</b>\n%s", reason))
}

// Summary sends the end-of-day report.
func (t *Telegram) Summary(date string, pnl db.DailyPnL, metrics risk.Metrics) {
	icon := "📈"
	if pnl.TotalPnL < 0 {
		icon = "📉"
	}
	t.Send(fmt.Sprintf(
		"%s <b>Daily Summary %s</b>\nTrades: %d (W %d / L %d)\nRealized PnL: %.2f\nMax drawdown: %.2f",
		icon, date, pnl.TotalTrades, pnl.WinningTrades, pnl.LosingTrades, pnl.TotalPnL, metrics.MaxDrawdown,
	))
}
