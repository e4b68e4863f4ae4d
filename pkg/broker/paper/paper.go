// Package paper fills orders locally at the last seen price. It stands
// in for the live broker when TRADE_MODE=paper so the full engine path
// runs without touching real money.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Gobinathr25/Supertrend/pkg/broker"
)

// Broker is an in-memory fill engine keyed by last traded prices.
type Broker struct {
	mu     sync.RWMutex
	prices map[string]float64
	orders map[string]broker.OrderReport
	byTag  map[string]string

	// InitialFunds reported by Funds; paper fills never consume margin.
	InitialFunds float64
}

// New builds an empty paper broker.
func New(initialFunds float64) *Broker {
	return &Broker{
		prices:       make(map[string]float64),
		orders:       make(map[string]broker.OrderReport),
		byTag:        make(map[string]string),
		InitialFunds: initialFunds,
	}
}

// MarkPrice records the latest price for a symbol. The engine calls
// this from its tick path so fills track the live feed.
func (b *Broker) MarkPrice(symbol string, ltp float64) {
	b.mu.Lock()
	b.prices[symbol] = ltp
	b.mu.Unlock()
}

// PlaceMarketOrder fills immediately at the marked price.
func (b *Broker) PlaceMarketOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ltp, ok := b.prices[req.Symbol]
	if !ok || ltp <= 0 {
		report := broker.OrderReport{
			Status:  broker.StatusRejected,
			Message: fmt.Sprintf("no price for %s", req.Symbol),
		}
		return report, nil
	}

	report := broker.OrderReport{
		OrderID:  "paper-" + uuid.NewString(),
		Status:   broker.StatusFilled,
		AvgPrice: ltp,
	}
	b.orders[report.OrderID] = report
	if req.Tag != "" {
		b.byTag[req.Tag] = report.OrderID
	}
	return report, nil
}

// OrderStatus returns a previously filled paper order.
func (b *Broker) OrderStatus(ctx context.Context, orderID string) (broker.OrderReport, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if r, ok := b.orders[orderID]; ok {
		return r, nil
	}
	return broker.OrderReport{}, broker.ErrOrderNotFound
}

// OrderStatusByTag looks an order up by its idempotency tag.
func (b *Broker) OrderStatusByTag(ctx context.Context, tag string) (broker.OrderReport, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if id, ok := b.byTag[tag]; ok {
		return b.orders[id], nil
	}
	return broker.OrderReport{}, broker.ErrOrderNotFound
}

// Quote returns the marked price for a symbol.
func (b *Broker) Quote(ctx context.Context, symbol string) (float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if ltp, ok := b.prices[symbol]; ok && ltp > 0 {
		return ltp, nil
	}
	return 0, fmt.Errorf("paper: no price for %s", symbol)
}

// Funds reports the configured paper balance.
func (b *Broker) Funds(ctx context.Context) (broker.Funds, error) {
	return broker.Funds{Available: b.InitialFunds}, nil
}
