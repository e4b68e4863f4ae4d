// Package engine wires the candle, signal, risk, order and scheduling
// pieces into one running strategy. The API layer talks to it only
// through the Service interface.
package engine

import (
	"context"
	"time"

	"github.com/Gobinathr25/Supertrend/internal/position"
	"github.com/Gobinathr25/Supertrend/internal/risk"
	"github.com/Gobinathr25/Supertrend/internal/strategy"
	"github.com/Gobinathr25/Supertrend/pkg/db"
)

// Service is the control surface exposed to the API layer.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	Snapshot(ctx context.Context) Dashboard
	Positions() []position.Snapshot
	TodayTrades(ctx context.Context) ([]db.Trade, error)

	RiskLimits() risk.Limits
	UpdateRiskLimits(l risk.Limits) error
}

// LegView is one leg's dashboard row.
type LegView struct {
	position.Snapshot
	Supertrend strategy.Value `json:"supertrend"`
}

// Dashboard is the full status snapshot.
type Dashboard struct {
	Running     bool         `json:"running"`
	TradeMode   string       `json:"trade_mode"`
	Date        string       `json:"date"`
	ServerTime  time.Time    `json:"server_time"`
	SpotSymbol  string       `json:"spot_symbol"`
	SpotPrice   float64      `json:"spot_price"`
	Legs        []LegView    `json:"legs"`
	Risk        risk.Metrics `json:"risk"`
	Unrealized  float64      `json:"unrealized_pnl"`
	MarginFree  float64      `json:"margin_available"`
	MarginUsed  float64      `json:"margin_utilized"`
	EntryCutoff time.Time    `json:"entry_cutoff"`
	SquareOff   time.Time    `json:"square_off"`
}
