package db

import "time"

// Trade represents one short option round trip (or its open half).
type Trade struct {
	ID            string
	TradeDate     string // YYYY-MM-DD
	Symbol        string
	Leg           string // CE or PE
	Qty           int
	EntryPrice    float64
	EntryTime     time.Time
	ExitPrice     float64
	ExitTime      time.Time
	ExitReason    string // STOP_LOSS, SQUARE_OFF, RECONCILE_VOID
	PnL           float64
	ReentryIndex  int
	Status        string // OPEN, CLOSED
	BrokerOrderID string
	DedupKey      string
	CreatedAt     time.Time
}

// DailyPnL is the per-day aggregate derived from closed trades.
type DailyPnL struct {
	Date          string
	TotalPnL      float64
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	MaxDrawdown   float64
}

// ReentryRow mirrors the per-leg, per-day re-entry counter.
type ReentryRow struct {
	Date        string
	Leg         string
	Count       int
	IsStopped   bool
	LastUpdated time.Time
}

// LogEvent is a structured strategy log row.
type LogEvent struct {
	Timestamp time.Time
	Level     string
	Leg       string
	Message   string
	Data      string // JSON payload
}

// Operator represents a dashboard login.
type Operator struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
