package risk

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Limits is the operator-tunable risk configuration.
type Limits struct {
	MaxDailyLoss    float64 `json:"max_daily_loss"`
	MaxTradesPerDay int     `json:"max_trades_per_day"`
	LotSize         int     `json:"lot_size"`
	ScalingEnabled  bool    `json:"scaling_enabled"`
}

// Metrics is the gate's view of the trading day.
type Metrics struct {
	Date        string  `json:"date"`
	RealizedPnL float64 `json:"realized_pnl"`
	TradeCount  int     `json:"trade_count"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Halted      bool    `json:"halted"`
}

// Decision is the outcome of an entry admission check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Gate admits or rejects entry intents against the day's shared
// counters. Both legs consult the same gate, so all state is guarded by
// one mutex. Exits are never routed through the gate: a position that
// needs closing must always be allowed to close.
type Gate struct {
	mu     sync.Mutex
	limits Limits

	date        string
	realizedPnL float64
	tradeCount  int
	peakPnL     float64
	maxDrawdown float64
}

// NewGate builds a gate with the given limits.
func NewGate(limits Limits) *Gate {
	return &Gate{limits: limits}
}

// ResetDay replaces the day's counters wholesale at rollover.
func (g *Gate) ResetDay(date string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.date = date
	g.realizedPnL = 0
	g.tradeCount = 0
	g.peakPnL = 0
	g.maxDrawdown = 0
}

// Seed restores counters from persistence after a restart.
func (g *Gate) Seed(date string, realizedPnL float64, tradeCount int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.date = date
	g.realizedPnL = realizedPnL
	g.tradeCount = tradeCount
	g.peakPnL = 0
	if realizedPnL > 0 {
		g.peakPnL = realizedPnL
	}
}

// AdmitEntry checks an entry intent against the leg state, the session
// cutoff and the day's shared counters.
func (g *Gate) AdmitEntry(now, entryCutoff time.Time, legStopped bool) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if legStopped {
		return deny("leg stopped for the day")
	}
	if !now.Before(entryCutoff) {
		return deny(fmt.Sprintf("past entry cutoff %s", entryCutoff.Format("15:04")))
	}
	if g.tradeCount >= g.limits.MaxTradesPerDay {
		return deny(fmt.Sprintf("daily trade limit reached (%d)", g.limits.MaxTradesPerDay))
	}
	if g.realizedPnL <= -g.limits.MaxDailyLoss {
		return deny(fmt.Sprintf("daily loss limit hit (pnl %.2f, limit %.2f)", g.realizedPnL, g.limits.MaxDailyLoss))
	}
	return allow()
}

// RecordEntry counts a filled entry against the daily trade limit.
func (g *Gate) RecordEntry() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tradeCount++
}

// RecordExit folds a closed trade's realized PnL into the counters.
func (g *Gate) RecordExit(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.realizedPnL += pnl
	if g.realizedPnL > g.peakPnL {
		g.peakPnL = g.realizedPnL
	}
	if dd := g.peakPnL - g.realizedPnL; dd > g.maxDrawdown {
		g.maxDrawdown = dd
	}
	if g.realizedPnL <= -g.limits.MaxDailyLoss {
		log.Printf("risk: daily loss limit breached, pnl=%.2f", g.realizedPnL)
	}
}

// Qty returns the order quantity for a re-entry index: the lot size
// scaled 1X/2X/3X when scaling is enabled, capped at 3X.
func (g *Gate) Qty(reentryIndex int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.limits.ScalingEnabled {
		return g.limits.LotSize
	}
	mult := reentryIndex + 1
	if mult > 3 {
		mult = 3
	}
	return g.limits.LotSize * mult
}

// Snapshot returns the current metrics.
func (g *Gate) Snapshot() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Metrics{
		Date:        g.date,
		RealizedPnL: g.realizedPnL,
		TradeCount:  g.tradeCount,
		MaxDrawdown: g.maxDrawdown,
		Halted:      g.realizedPnL <= -g.limits.MaxDailyLoss || g.tradeCount >= g.limits.MaxTradesPerDay,
	}
}

// Limits returns the current limits.
func (g *Gate) Limits() Limits {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limits
}

// UpdateLimits swaps the limits; counters are untouched so a raised
// loss limit takes effect immediately.
func (g *Gate) UpdateLimits(l Limits) error {
	if l.MaxDailyLoss <= 0 || l.MaxTradesPerDay <= 0 || l.LotSize <= 0 {
		return fmt.Errorf("invalid limits: %+v", l)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits = l
	return nil
}
