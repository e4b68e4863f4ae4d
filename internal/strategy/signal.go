package strategy

import (
	"sync"

	"github.com/Gobinathr25/Supertrend/internal/market"
)

// Signal is the per-candle trading decision for one leg.
type Signal int

const (
	SignalNone Signal = iota
	// SignalEntry means sell the option: premium closed below the
	// supertrend line (premium downtrend).
	SignalEntry
	// SignalExit means buy the short back: premium closed above the
	// line, the stop level for a short option.
	SignalExit
)

func (s Signal) String() string {
	switch s {
	case SignalEntry:
		return "ENTRY"
	case SignalExit:
		return "EXIT"
	default:
		return "NONE"
	}
}

// Engine evaluates one leg's closed candles against its supertrend.
// It is pure trend logic: session cutoffs, re-entry limits and loss
// limits are enforced downstream by the risk gate. Updates happen on
// the leg goroutine while dashboards read Last concurrently, so the
// indicator state is mutex-guarded.
type Engine struct {
	Leg string

	mu sync.Mutex
	st *Supertrend
}

// NewEngine builds a signal engine for a leg.
func NewEngine(leg string, period int, multiplier float64, smoothing Smoothing) *Engine {
	return &Engine{Leg: leg, st: NewSupertrend(period, multiplier, smoothing)}
}

// Evaluate folds the closed candle into the indicator and decides.
// hasOpen reflects whether the leg currently holds a short position.
func (e *Engine) Evaluate(c market.Candle, hasOpen bool) (Signal, Value) {
	e.mu.Lock()
	v := e.st.Update(c)
	e.mu.Unlock()
	if !v.Valid {
		return SignalNone, v
	}
	if !hasOpen && c.Close < v.Supertrend {
		return SignalEntry, v
	}
	if hasOpen && c.Close > v.Supertrend {
		return SignalExit, v
	}
	return SignalNone, v
}

// Warmup replays historical candles without emitting signals. Used on
// restart so the indicator is valid before live evaluation resumes.
func (e *Engine) Warmup(candles []market.Candle) Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	var v Value
	for _, c := range candles {
		v = e.st.Update(c)
	}
	return v
}

// Last exposes the current indicator value for dashboards.
func (e *Engine) Last() Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.Last()
}

// CurrentDistance reports how far the last close sits from the line.
func (e *Engine) CurrentDistance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.CurrentDistance()
}
