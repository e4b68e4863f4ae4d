package market

import (
	"context"
	"log"

	"github.com/Gobinathr25/Supertrend/internal/events"
	"github.com/Gobinathr25/Supertrend/pkg/broker"
)

// Feed pumps ticks from the broker stream into a handler and mirrors
// them onto the event bus for dashboard consumers.
type Feed struct {
	Stream  broker.TickStream
	Bus     *events.Bus
	Symbols []string

	// Handler receives every tick on the feed goroutine. The engine
	// uses it to route ticks into the per-leg queues.
	Handler func(broker.Tick)
}

// Start subscribes and runs until ctx is cancelled or the stream closes.
// It returns the stream's stop function.
func (f *Feed) Start(ctx context.Context) (func(), error) {
	ch, stop, err := f.Stream.Subscribe(ctx, f.Symbols)
	if err != nil {
		return nil, err
	}

	go func() {
		for tk := range ch {
			if f.Handler != nil {
				f.Handler(tk)
			}
			if f.Bus != nil {
				f.Bus.Publish(events.EventPriceTick, tk)
			}
		}
		log.Println("market feed: tick stream closed")
	}()

	return stop, nil
}
