// Package broker defines the order and market-data surface the engine
// trades through. pkg/broker/fyers implements it against the Fyers v3
// API; pkg/broker/paper fills orders locally for paper trading.
package broker

import (
	"context"
	"errors"
	"time"
)

// Side of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Status of an order at the broker.
type Status string

const (
	StatusFilled    Status = "FILLED"
	StatusPending   Status = "PENDING"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
	StatusUnknown   Status = "UNKNOWN"
)

// ErrOrderNotFound is returned by status lookups when the broker has no
// record of the order. After an ambiguous submit timeout this means the
// order never reached the broker and may be resubmitted.
var ErrOrderNotFound = errors.New("order not found at broker")

// OrderRequest is a market order. Tag is the caller's idempotency
// reference; it is sent to the broker and can be used to locate the
// order when the submit response was lost.
type OrderRequest struct {
	Symbol string
	Qty    int
	Side   Side
	Tag    string
}

// OrderReport is the broker's view of an order.
type OrderReport struct {
	OrderID  string
	Status   Status
	AvgPrice float64
	Message  string
}

// Tick is one quote update from the data stream.
type Tick struct {
	Symbol string
	LTP    float64
	Time   time.Time
}

// Funds is the account margin snapshot.
type Funds struct {
	Available float64
	Utilized  float64
}

// Broker places and inspects orders.
type Broker interface {
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (OrderReport, error)
	OrderStatus(ctx context.Context, orderID string) (OrderReport, error)
	// OrderStatusByTag locates an order by the idempotency tag sent with it.
	OrderStatusByTag(ctx context.Context, tag string) (OrderReport, error)
	Quote(ctx context.Context, symbol string) (float64, error)
	Funds(ctx context.Context) (Funds, error)
}

// TickStream delivers live quotes. Subscribe returns a receive channel
// and a stop function; the channel is closed when the stream ends.
type TickStream interface {
	Subscribe(ctx context.Context, symbols []string) (<-chan Tick, func(), error)
}

// HistCandle is one historical bar from the data API.
type HistCandle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Historian is implemented by brokers that serve historical candles.
// The engine uses it to warm indicators up on a mid-session start
// instead of waiting for live candles to accumulate.
type Historian interface {
	History(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]HistCandle, error)
}
