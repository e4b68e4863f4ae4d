package market

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/Gobinathr25/Supertrend/pkg/broker"
)

// MockStream generates random-walk ticks for local development and
// paper trading without a live data socket. Each symbol walks
// independently; index symbols start near the spot level, everything
// else near a typical option premium.
type MockStream struct {
	SpotPrice   float64
	OptionPrice float64
	Step        float64
	Interval    time.Duration
}

// Subscribe emits synthetic ticks for each symbol until stopped.
func (m *MockStream) Subscribe(ctx context.Context, symbols []string) (<-chan broker.Tick, func(), error) {
	spot := m.SpotPrice
	if spot == 0 {
		spot = 24500
	}
	premium := m.OptionPrice
	if premium == 0 {
		premium = 150
	}
	step := m.Step
	if step == 0 {
		step = 2.5
	}
	interval := m.Interval
	if interval == 0 {
		interval = time.Second
	}

	prices := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		if strings.Contains(sym, "-INDEX") {
			prices[sym] = spot
		} else {
			prices[sym] = premium
		}
	}

	out := make(chan broker.Tick, 64)
	runCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() { once.Do(cancel) }

	go func() {
		defer close(out)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case now := <-t.C:
				for _, sym := range symbols {
					p := prices[sym] + (rand.Float64()*2-1)*step
					if p < 1 {
						p = 1
					}
					prices[sym] = p
					select {
					case out <- broker.Tick{Symbol: sym, LTP: p, Time: now}:
					default:
					}
				}
			}
		}
	}()

	return out, stop, nil
}
