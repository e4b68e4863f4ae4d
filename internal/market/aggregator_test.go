package market

import (
	"testing"
	"time"

	"github.com/Gobinathr25/Supertrend/pkg/broker"
)

var ist = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(err)
	}
	return loc
}()

func tick(hh, mm, ss int, ltp float64) broker.Tick {
	return broker.Tick{
		Symbol: "NSE:NIFTY50-INDEX",
		LTP:    ltp,
		Time:   time.Date(2026, 8, 24, hh, mm, ss, 0, ist),
	}
}

func TestAggregatorAlignedBoundaries(t *testing.T) {
	a := NewAggregator(3 * time.Minute)

	ticks := []broker.Tick{
		tick(9, 15, 1, 24500),
		tick(9, 15, 40, 24510),
		tick(9, 16, 30, 24490),
		tick(9, 17, 59, 24505),
	}
	for _, tk := range ticks {
		if _, closed := a.Apply(tk); closed {
			t.Fatalf("candle closed early at %v", tk.Time)
		}
	}

	// First tick of 09:18 closes the 09:15 candle.
	c, closed := a.Apply(tick(9, 18, 0, 24507))
	if !closed {
		t.Fatal("expected closed candle at boundary")
	}
	want := Candle{
		Symbol: "NSE:NIFTY50-INDEX",
		Start:  time.Date(2026, 8, 24, 9, 15, 0, 0, ist),
		Open:   24500, High: 24510, Low: 24490, Close: 24505,
		Ticks: 4,
	}
	if !c.Start.Equal(want.Start) || c.Open != want.Open || c.High != want.High ||
		c.Low != want.Low || c.Close != want.Close || c.Ticks != want.Ticks {
		t.Errorf("candle = %+v, want %+v", c, want)
	}

	cur, ok := a.Current()
	if !ok || !cur.Start.Equal(time.Date(2026, 8, 24, 9, 18, 0, 0, ist)) {
		t.Errorf("current candle = %+v", cur)
	}
}

func TestAggregatorGapSkipsIntervals(t *testing.T) {
	a := NewAggregator(3 * time.Minute)
	a.Apply(tick(9, 15, 5, 24500))

	// Feed silent through 09:18 and 09:21; next tick lands in 09:24.
	c, closed := a.Apply(tick(9, 24, 10, 24520))
	if !closed {
		t.Fatal("expected the 09:15 candle to close")
	}
	if !c.Start.Equal(time.Date(2026, 8, 24, 9, 15, 0, 0, ist)) {
		t.Errorf("closed candle start = %v", c.Start)
	}

	cur, ok := a.Current()
	if !ok || !cur.Start.Equal(time.Date(2026, 8, 24, 9, 24, 0, 0, ist)) {
		t.Errorf("current = %+v", cur)
	}
}

func TestAggregatorIgnoresLateTicks(t *testing.T) {
	a := NewAggregator(3 * time.Minute)
	a.Apply(tick(9, 18, 5, 24500))

	if _, closed := a.Apply(tick(9, 17, 59, 24400)); closed {
		t.Fatal("late tick must not close a candle")
	}
	cur, _ := a.Current()
	if cur.Low != 24500 {
		t.Errorf("late tick mutated candle: %+v", cur)
	}
}

func TestAggregatorFlush(t *testing.T) {
	a := NewAggregator(3 * time.Minute)
	a.Apply(tick(9, 15, 5, 24500))
	a.Apply(tick(9, 16, 5, 24515))

	// Still inside the interval: no flush.
	if _, closed := a.Flush(time.Date(2026, 8, 24, 9, 17, 59, 0, ist)); closed {
		t.Fatal("flushed before interval end")
	}

	c, closed := a.Flush(time.Date(2026, 8, 24, 9, 18, 2, 0, ist))
	if !closed {
		t.Fatal("expected flush past interval end")
	}
	if c.Close != 24515 || c.Ticks != 2 {
		t.Errorf("flushed candle = %+v", c)
	}

	if _, ok := a.Current(); ok {
		t.Error("current candle should be empty after flush")
	}
}

func TestFlushedWindowStaysClosed(t *testing.T) {
	a := NewAggregator(3 * time.Minute)
	a.Apply(tick(9, 15, 0, 24500))

	c, closed := a.Flush(time.Date(2026, 8, 24, 9, 18, 1, 0, ist))
	if !closed || !c.Start.Equal(time.Date(2026, 8, 24, 9, 15, 0, 0, ist)) {
		t.Fatalf("flush = %+v closed=%v", c, closed)
	}

	// A delayed tick stamped inside the flushed window must not reopen
	// it; the 09:15 window already emitted.
	if _, closed := a.Apply(tick(9, 17, 50, 24480)); closed {
		t.Fatal("late tick closed a candle")
	}
	if cur, ok := a.Current(); ok {
		t.Fatalf("late tick reopened flushed window: %+v", cur)
	}

	// The next live tick opens 09:18 without emitting 09:15 again.
	if c, closed := a.Apply(tick(9, 18, 10, 24505)); closed {
		t.Fatalf("window emitted twice: %+v", c)
	}
	cur, ok := a.Current()
	if !ok || !cur.Start.Equal(time.Date(2026, 8, 24, 9, 18, 0, 0, ist)) {
		t.Errorf("current = %+v", cur)
	}
}
