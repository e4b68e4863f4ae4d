package market

import (
	"time"

	"github.com/Gobinathr25/Supertrend/pkg/broker"
)

// Candle is one synthesized OHLC bar.
type Candle struct {
	Symbol string
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Ticks  int
}

// End returns the exclusive end of the candle's interval.
func (c Candle) End(interval time.Duration) time.Time {
	return c.Start.Add(interval)
}

// Aggregator folds a tick stream into fixed-interval candles aligned to
// wall-clock boundaries (09:15:00, 09:18:00, ... for 3m). A candle is
// emitted when the first tick of the next interval arrives, or when
// Flush is called past the boundary. Not safe for concurrent use; the
// owner serializes ticks.
type Aggregator struct {
	interval time.Duration
	current  *Candle
	// lastClosed is the start of the newest emitted window. Ticks that
	// bucket at or before it are late and must not reopen the window.
	lastClosed time.Time
}

// NewAggregator builds an aggregator for the given interval.
func NewAggregator(interval time.Duration) *Aggregator {
	return &Aggregator{interval: interval}
}

func (a *Aggregator) bucket(t time.Time) time.Time {
	return t.Truncate(a.interval)
}

// Apply folds one tick in. When the tick belongs to a later interval
// than the open candle, the open candle is returned closed. A gap of
// several intervals still yields only the one real candle; no synthetic
// flat bars are invented for silent intervals.
func (a *Aggregator) Apply(t broker.Tick) (Candle, bool) {
	start := a.bucket(t.Time)

	// Late tick for an already-emitted window: ignore rather than
	// rewrite history. This holds even right after a flush, when no
	// candle is open.
	if !a.lastClosed.IsZero() && !start.After(a.lastClosed) {
		return Candle{}, false
	}

	if a.current == nil {
		a.current = &Candle{
			Symbol: t.Symbol,
			Start:  start,
			Open:   t.LTP, High: t.LTP, Low: t.LTP, Close: t.LTP,
			Ticks: 1,
		}
		return Candle{}, false
	}

	if start.Before(a.current.Start) {
		return Candle{}, false
	}

	if start.Equal(a.current.Start) {
		c := a.current
		if t.LTP > c.High {
			c.High = t.LTP
		}
		if t.LTP < c.Low {
			c.Low = t.LTP
		}
		c.Close = t.LTP
		c.Ticks++
		return Candle{}, false
	}

	closed := *a.current
	a.lastClosed = closed.Start
	a.current = &Candle{
		Symbol: t.Symbol,
		Start:  start,
		Open:   t.LTP, High: t.LTP, Low: t.LTP, Close: t.LTP,
		Ticks: 1,
	}
	return closed, true
}

// Flush closes the open candle if now is past its interval end. Used by
// the timer path so a quiet feed cannot hold a candle open forever.
func (a *Aggregator) Flush(now time.Time) (Candle, bool) {
	if a.current == nil {
		return Candle{}, false
	}
	if now.Before(a.current.End(a.interval)) {
		return Candle{}, false
	}
	closed := *a.current
	a.lastClosed = closed.Start
	a.current = nil
	return closed, true
}

// Current returns a copy of the open candle, if any.
func (a *Aggregator) Current() (Candle, bool) {
	if a.current == nil {
		return Candle{}, false
	}
	return *a.current, true
}
