package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/Gobinathr25/Supertrend/pkg/db"
)

var ist = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(err)
	}
	return loc
}()

func TestDayContext(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, ist)
	d, err := NewDayContext(now, ist, "09:15", "14:45", "15:15")
	if err != nil {
		t.Fatalf("new day: %v", err)
	}
	if d.Date != "2026-08-24" {
		t.Errorf("date = %s", d.Date)
	}

	tests := []struct {
		hh, mm    int
		inSession bool
		pastSq    bool
	}{
		{9, 0, false, false},
		{9, 15, true, false},
		{14, 44, true, false},
		{15, 14, true, false},
		{15, 15, false, true},
		{15, 30, false, true},
	}
	for _, tc := range tests {
		at := time.Date(2026, 8, 24, tc.hh, tc.mm, 0, 0, ist)
		if got := d.InSession(at); got != tc.inSession {
			t.Errorf("InSession(%02d:%02d) = %v", tc.hh, tc.mm, got)
		}
		if got := d.PastSquareOff(at); got != tc.pastSq {
			t.Errorf("PastSquareOff(%02d:%02d) = %v", tc.hh, tc.mm, got)
		}
	}

	if d.SameDay(time.Date(2026, 8, 25, 0, 1, 0, 0, ist)) {
		t.Error("next day counted as same day")
	}
}

func TestDayContextRejectsBadOrder(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, ist)
	if _, err := NewDayContext(now, ist, "15:15", "14:45", "09:15"); err == nil {
		t.Fatal("accepted reversed boundaries")
	}
}

type hookCounts struct {
	squareOff int
	summary   int
	rollover  int
}

func newTestScheduler(t *testing.T, clock *time.Time) (*Scheduler, *hookCounts, *db.Database) {
	t.Helper()
	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.ApplyMigrations(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	counts := &hookCounts{}
	hooks := Hooks{
		SquareOff: func(ctx context.Context, day DayContext) { counts.squareOff++ },
		Summary:   func(ctx context.Context, day DayContext) { counts.summary++ },
		Rollover:  func(ctx context.Context, day DayContext) { counts.rollover++ },
	}

	s, err := NewScheduler(d, ist, "09:15", "14:45", "15:15", hooks)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Clock = func() time.Time { return *clock }
	// Rebuild the day from the injected clock.
	day, err := NewDayContext(*clock, ist, "09:15", "14:45", "15:15")
	if err != nil {
		t.Fatal(err)
	}
	s.day = day
	return s, counts, d
}

func TestSquareOffAndSummaryFireOnce(t *testing.T) {
	clock := time.Date(2026, 8, 24, 15, 0, 0, 0, ist)
	s, counts, _ := newTestScheduler(t, &clock)
	ctx := context.Background()

	s.Tick(ctx)
	if counts.squareOff != 0 || counts.summary != 0 {
		t.Fatalf("fired before square-off time: %+v", counts)
	}

	clock = time.Date(2026, 8, 24, 15, 15, 10, 0, ist)
	s.Tick(ctx)
	s.Tick(ctx)
	s.Tick(ctx)
	if counts.squareOff != 1 {
		t.Errorf("square-off fired %d times, want 1", counts.squareOff)
	}
	if counts.summary != 1 {
		t.Errorf("summary fired %d times, want 1", counts.summary)
	}
}

func TestTriggersSurviveRestart(t *testing.T) {
	clock := time.Date(2026, 8, 24, 15, 20, 0, 0, ist)
	s, counts, d := newTestScheduler(t, &clock)
	ctx := context.Background()

	s.Tick(ctx)
	if counts.squareOff != 1 || counts.summary != 1 {
		t.Fatalf("first process: %+v", counts)
	}

	// Second scheduler over the same database, as after a restart.
	counts2 := &hookCounts{}
	s2, err := NewScheduler(d, ist, "09:15", "14:45", "15:15", Hooks{
		SquareOff: func(ctx context.Context, day DayContext) { counts2.squareOff++ },
		Summary:   func(ctx context.Context, day DayContext) { counts2.summary++ },
	})
	if err != nil {
		t.Fatalf("restart scheduler: %v", err)
	}
	s2.Clock = func() time.Time { return clock }
	day, _ := NewDayContext(clock, ist, "09:15", "14:45", "15:15")
	s2.day = day

	s2.Tick(ctx)
	if counts2.squareOff != 0 || counts2.summary != 0 {
		t.Errorf("restart re-fired triggers: %+v", counts2)
	}
}

func TestRolloverResetsDay(t *testing.T) {
	clock := time.Date(2026, 8, 24, 15, 20, 0, 0, ist)
	s, counts, _ := newTestScheduler(t, &clock)
	ctx := context.Background()

	s.Tick(ctx)
	if counts.squareOff != 1 {
		t.Fatalf("square-off not fired: %+v", counts)
	}

	clock = time.Date(2026, 8, 25, 9, 0, 0, 0, ist)
	s.Tick(ctx)
	if counts.rollover != 1 {
		t.Errorf("rollover fired %d times, want 1", counts.rollover)
	}
	if got := s.Day().Date; got != "2026-08-25" {
		t.Errorf("day = %s", got)
	}
	// New day, fresh markers: square-off may fire again after 15:15.
	clock = time.Date(2026, 8, 25, 15, 16, 0, 0, ist)
	s.Tick(ctx)
	if counts.squareOff != 2 {
		t.Errorf("square-off on new day fired %d times, want 2", counts.squareOff)
	}
}
