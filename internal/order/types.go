// Package order turns trading intents into broker orders exactly once.
// Every intent carries a deduplication key; the executor refuses to
// submit the same key twice, across retries and across restarts.
package order

import (
	"fmt"

	"github.com/Gobinathr25/Supertrend/pkg/broker"
)

// Kind of intent.
type Kind string

const (
	KindEntry Kind = "ENTRY"
	KindExit  Kind = "EXIT"
)

// Intent is one desired position change for a leg.
type Intent struct {
	Kind   Kind
	Leg    string
	Symbol string
	Qty    int
	Side   broker.Side

	// Date and ReentryIndex identify an entry within the day.
	Date         string
	ReentryIndex int

	// TradeID and Reason apply to exits.
	TradeID string
	Reason  string

	// PriceHint is the latest mark, used for logging only; orders are
	// market orders.
	PriceHint float64

	// Done, when non-nil, is closed by the queue owner after the intent
	// has been handled. Square-off enqueues with it so the daily summary
	// only runs once the exits have settled.
	Done chan struct{}
}

// DedupKey identifies the intent for idempotent submission. An entry is
// unique per (leg, day, re-entry index, side); an exit is unique per
// trade, since a trade closes at most once.
func (i Intent) DedupKey() string {
	if i.Kind == KindExit {
		return fmt.Sprintf("EXIT|%s", i.TradeID)
	}
	return fmt.Sprintf("ENTRY|%s|%s|%d|%s", i.Leg, i.Date, i.ReentryIndex, i.Side)
}

func (i Intent) String() string {
	return fmt.Sprintf("%s %s %s qty=%d", i.Kind, i.Leg, i.Symbol, i.Qty)
}
