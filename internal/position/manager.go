// Package position tracks the per-leg trade lifecycle. Each option leg
// (CE, PE) moves through IDLE -> OPEN -> IDLE on a clean exit, or to
// STOPPED once its re-entry budget for the day is spent.
package position

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Gobinathr25/Supertrend/pkg/db"
)

// LegState is the lifecycle state of one option leg.
type LegState string

const (
	StateIdle    LegState = "IDLE"
	StateOpen    LegState = "OPEN"
	StateStopped LegState = "STOPPED"
)

// MaxEntries is the per-leg entry budget for a day: the initial entry
// plus two re-entries, scaled 1X/2X/3X.
const MaxEntries = 3

// Leg names.
const (
	LegCE = "CE"
	LegPE = "PE"
)

// Legs lists both option legs in a stable order.
var Legs = []string{LegCE, LegPE}

// Snapshot is a read-only view of one leg.
type Snapshot struct {
	Leg           string    `json:"leg"`
	State         LegState  `json:"state"`
	ReentryCount  int       `json:"reentry_count"`
	Symbol        string    `json:"symbol,omitempty"`
	Qty           int       `json:"qty,omitempty"`
	EntryPrice    float64   `json:"entry_price,omitempty"`
	EntryTime     time.Time `json:"entry_time,omitempty"`
	LastPrice     float64   `json:"last_price,omitempty"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	TradeID       string    `json:"trade_id,omitempty"`
}

type leg struct {
	name         string
	state        LegState
	reentryCount int
	trade        *db.Trade
	lastPrice    float64
}

// Manager keeps the in-memory leg view and persists every transition so
// a restart can rebuild it. All access goes through one mutex; the
// per-leg queues already serialize most callers but the dashboard reads
// concurrently.
type Manager struct {
	mu   sync.RWMutex
	db   *db.Database
	legs map[string]*leg
	date string
}

// NewManager builds a manager with both legs IDLE.
func NewManager(database *db.Database) *Manager {
	m := &Manager{db: database, legs: make(map[string]*leg)}
	for _, name := range Legs {
		m.legs[name] = &leg{name: name, state: StateIdle}
	}
	return m
}

// Load seeds leg state from today's persisted rows: re-entry counters
// and any trade still marked OPEN from before a restart.
func (m *Manager) Load(ctx context.Context, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.date = date

	for _, l := range m.legs {
		row, err := m.db.GetReentry(ctx, date, l.name)
		if err != nil {
			return fmt.Errorf("load reentry %s: %w", l.name, err)
		}
		l.reentryCount = row.Count
		l.state = StateIdle
		l.trade = nil
		if row.IsStopped {
			l.state = StateStopped
		}
	}

	open, err := m.db.ListOpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("load open trades: %w", err)
	}
	for i := range open {
		t := open[i]
		if t.TradeDate != date {
			// Stale overnight row; the reconciler deals with it.
			log.Printf("position: ignoring stale open trade %s from %s", t.ID, t.TradeDate)
			continue
		}
		l, ok := m.legs[t.Leg]
		if !ok {
			continue
		}
		l.state = StateOpen
		l.trade = &t
	}
	return nil
}

// ResetDay wipes leg state for a new trading day.
func (m *Manager) ResetDay(date string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.date = date
	for _, l := range m.legs {
		l.state = StateIdle
		l.reentryCount = 0
		l.trade = nil
		l.lastPrice = 0
	}
}

// HasOpen reports whether the leg holds an open short.
func (m *Manager) HasOpen(legName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l := m.legs[legName]
	return l != nil && l.state == StateOpen
}

// Stopped reports whether the leg is done for the day.
func (m *Manager) Stopped(legName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l := m.legs[legName]
	return l != nil && l.state == StateStopped
}

// ReentryIndex returns the entry index the next fill would carry
// (0 = first entry, 1 = first re-entry, ...).
func (m *Manager) ReentryIndex(legName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l := m.legs[legName]
	if l == nil {
		return 0
	}
	return l.reentryCount
}

// OpenTrade returns the leg's open trade, if any.
func (m *Manager) OpenTrade(legName string) (db.Trade, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l := m.legs[legName]
	if l == nil || l.trade == nil {
		return db.Trade{}, false
	}
	return *l.trade, true
}

// ApplyEntryFill records a filled entry and persists the trade row.
// A second open on the same leg is rejected: at most one position per
// leg may exist at any time.
func (m *Manager) ApplyEntryFill(ctx context.Context, t db.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.legs[t.Leg]
	if !ok {
		return fmt.Errorf("unknown leg %q", t.Leg)
	}
	if l.state == StateOpen {
		return fmt.Errorf("leg %s already holds trade %s", t.Leg, l.trade.ID)
	}
	if l.state == StateStopped {
		return fmt.Errorf("leg %s is stopped for the day", t.Leg)
	}

	if err := m.db.CreateTrade(ctx, t); err != nil {
		return fmt.Errorf("persist entry %s: %w", t.Leg, err)
	}
	l.state = StateOpen
	l.trade = &t
	l.lastPrice = t.EntryPrice
	return nil
}

// Exit reasons recorded on the trade row.
const (
	ReasonStopLoss  = "STOP_LOSS"
	ReasonSquareOff = "SQUARE_OFF"
)

// ApplyExitFill closes the leg's open trade and returns the closed row.
// A stop-loss exit consumes one entry from the re-entry budget; once
// the budget is spent the leg moves to STOPPED. A square-off exit does
// not touch the budget since the day is over anyway.
func (m *Manager) ApplyExitFill(ctx context.Context, legName string, exitPrice float64, exitTime time.Time, reason string) (db.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.legs[legName]
	if !ok {
		return db.Trade{}, fmt.Errorf("unknown leg %q", legName)
	}
	if l.state != StateOpen || l.trade == nil {
		return db.Trade{}, fmt.Errorf("leg %s has no open trade", legName)
	}

	closed, err := m.db.CloseTrade(ctx, l.trade.ID, exitPrice, exitTime, reason)
	if err != nil {
		return db.Trade{}, fmt.Errorf("persist exit %s: %w", legName, err)
	}

	l.trade = nil
	l.state = StateIdle
	if reason == ReasonStopLoss {
		l.reentryCount++
		if l.reentryCount >= MaxEntries {
			l.state = StateStopped
		}
		if err := m.db.UpsertReentry(ctx, db.ReentryRow{
			Date:      m.date,
			Leg:       legName,
			Count:     l.reentryCount,
			IsStopped: l.state == StateStopped,
		}); err != nil {
			log.Printf("position: persist reentry %s: %v", legName, err)
		}
	}
	return closed, nil
}

// MarkStopped forces a leg to STOPPED. Used when order execution fails
// fatally and the leg must not trade again today.
func (m *Manager) MarkStopped(ctx context.Context, legName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.legs[legName]
	if !ok {
		return
	}
	l.state = StateStopped
	if err := m.db.UpsertReentry(ctx, db.ReentryRow{
		Date:      m.date,
		Leg:       legName,
		Count:     l.reentryCount,
		IsStopped: true,
	}); err != nil {
		log.Printf("position: persist stop %s: %v", legName, err)
	}
}

// MarkPrice updates the mark for whichever open leg trades the symbol.
func (m *Manager) MarkPrice(symbol string, ltp float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.legs {
		if l.trade != nil && l.trade.Symbol == symbol {
			l.lastPrice = ltp
		}
	}
}

func (l *leg) snapshot() Snapshot {
	s := Snapshot{
		Leg:          l.name,
		State:        l.state,
		ReentryCount: l.reentryCount,
		LastPrice:    l.lastPrice,
	}
	if l.trade != nil {
		s.Symbol = l.trade.Symbol
		s.Qty = l.trade.Qty
		s.EntryPrice = l.trade.EntryPrice
		s.EntryTime = l.trade.EntryTime
		s.TradeID = l.trade.ID
		if l.lastPrice > 0 {
			s.UnrealizedPnL = (l.trade.EntryPrice - l.lastPrice) * float64(l.trade.Qty)
		}
	}
	return s
}

// Snapshot returns one leg's view.
func (m *Manager) Snapshot(legName string) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.legs[legName]
	if !ok {
		return Snapshot{Leg: legName}
	}
	return l.snapshot()
}

// Snapshots returns both legs in stable order.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]Snapshot, 0, len(Legs))
	for _, name := range Legs {
		res = append(res, m.legs[name].snapshot())
	}
	return res
}

// UnrealizedPnL sums the open legs' mark-to-market PnL.
func (m *Manager) UnrealizedPnL() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum float64
	for _, l := range m.legs {
		if l.trade != nil && l.lastPrice > 0 {
			sum += (l.trade.EntryPrice - l.lastPrice) * float64(l.trade.Qty)
		}
	}
	return sum
}
