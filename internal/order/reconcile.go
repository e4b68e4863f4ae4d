package order

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Gobinathr25/Supertrend/pkg/broker"
	"github.com/Gobinathr25/Supertrend/pkg/db"
)

// Discrepancy is one disagreement between local state and the broker.
type Discrepancy struct {
	TradeID string
	Symbol  string
	Local   string
	Broker  broker.Status
	Action  string
}

// Reconcile compares every locally OPEN trade with the broker's
// orderbook. A trade whose entry order the broker never filled is
// voided locally (closed at entry price, zero PnL); everything else is
// reported for the operator. Called before the engine declares itself
// stopped.
func Reconcile(ctx context.Context, b broker.Broker, d *db.Database) ([]Discrepancy, error) {
	open, err := d.ListOpenTrades(ctx)
	if err != nil {
		return nil, err
	}

	var out []Discrepancy
	for _, t := range open {
		if t.BrokerOrderID == "" {
			// Paper fills carry synthetic IDs; nothing to check against.
			continue
		}
		report, err := b.OrderStatus(ctx, t.BrokerOrderID)
		switch {
		case errors.Is(err, broker.ErrOrderNotFound):
			report = broker.OrderReport{Status: broker.StatusUnknown}
		case err != nil:
			log.Printf("reconcile: status %s: %v", t.BrokerOrderID, err)
			out = append(out, Discrepancy{
				TradeID: t.ID, Symbol: t.Symbol, Local: t.Status,
				Broker: broker.StatusUnknown, Action: "status check failed, manual review",
			})
			continue
		}

		switch report.Status {
		case broker.StatusFilled:
			// Broker agrees the position exists.
		case broker.StatusRejected, broker.StatusCancelled:
			if _, err := d.CloseTrade(ctx, t.ID, t.EntryPrice, time.Now(), "RECONCILE_VOID"); err != nil {
				log.Printf("reconcile: void %s: %v", t.ID, err)
				continue
			}
			log.Printf("reconcile: voided trade %s, broker reports %s", t.ID, report.Status)
			out = append(out, Discrepancy{
				TradeID: t.ID, Symbol: t.Symbol, Local: t.Status,
				Broker: report.Status, Action: "voided local trade",
			})
		default:
			out = append(out, Discrepancy{
				TradeID: t.ID, Symbol: t.Symbol, Local: t.Status,
				Broker: report.Status, Action: "manual review",
			})
		}
	}
	return out, nil
}
