package schedule

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Gobinathr25/Supertrend/pkg/db"
)

// Hooks are the actions the scheduler drives. Each hook must tolerate
// being skipped (marker already set) but never runs twice for a day.
type Hooks struct {
	// SquareOff force-closes every open position.
	SquareOff func(ctx context.Context, day DayContext)
	// Summary emits the end-of-day report.
	Summary func(ctx context.Context, day DayContext)
	// Rollover resets per-day state for the new day.
	Rollover func(ctx context.Context, day DayContext)
}

// Scheduler fires the day's time-based triggers. Firing is idempotent:
// each trigger persists a marker in app_config, so neither a second
// tick nor a process restart repeats it.
type Scheduler struct {
	DB       *db.Database
	Hooks    Hooks
	Interval time.Duration

	// Clock is injectable for tests; defaults to time.Now.
	Clock func() time.Time

	mu  sync.Mutex
	day DayContext

	open   string
	cutoff string
	square string
	loc    *time.Location
}

// NewScheduler builds a scheduler around the given session boundaries.
func NewScheduler(database *db.Database, loc *time.Location, open, cutoff, squareOff string, hooks Hooks) (*Scheduler, error) {
	s := &Scheduler{
		DB:       database,
		Hooks:    hooks,
		Interval: 30 * time.Second,
		Clock:    time.Now,
		open:     open,
		cutoff:   cutoff,
		square:   squareOff,
		loc:      loc,
	}
	day, err := NewDayContext(s.Clock(), loc, open, cutoff, squareOff)
	if err != nil {
		return nil, err
	}
	s.day = day
	return s, nil
}

// Day returns the current day context.
func (s *Scheduler) Day() DayContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.day
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

func (s *Scheduler) marker(kind, date string) string {
	return kind + ":" + date
}

func (s *Scheduler) fired(ctx context.Context, kind, date string) bool {
	v, err := s.DB.GetConfigValue(ctx, s.marker(kind, date))
	if err != nil {
		log.Printf("scheduler: read marker %s: %v", kind, err)
		return false
	}
	return v != ""
}

func (s *Scheduler) markFired(ctx context.Context, kind, date string) {
	if err := s.DB.SetConfigValue(ctx, s.marker(kind, date), "1"); err != nil {
		log.Printf("scheduler: persist marker %s: %v", kind, err)
	}
}

// Tick evaluates the triggers once. Exported so tests and the engine's
// timer path can drive it directly.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.Clock()

	s.mu.Lock()
	day := s.day
	s.mu.Unlock()

	if !day.SameDay(now) {
		next, err := NewDayContext(now, s.loc, s.open, s.cutoff, s.square)
		if err != nil {
			log.Printf("scheduler: rollover: %v", err)
			return
		}
		s.mu.Lock()
		s.day = next
		s.mu.Unlock()
		log.Printf("scheduler: rolled over to %s", next.Date)
		if s.Hooks.Rollover != nil {
			s.Hooks.Rollover(ctx, next)
		}
		day = next
	}

	if !day.PastSquareOff(now) {
		return
	}

	if !s.fired(ctx, "squareoff_done", day.Date) {
		s.markFired(ctx, "squareoff_done", day.Date)
		log.Printf("scheduler: forcing square-off for %s", day.Date)
		if s.Hooks.SquareOff != nil {
			s.Hooks.SquareOff(ctx, day)
		}
	}

	if !s.fired(ctx, "summary_sent", day.Date) {
		s.markFired(ctx, "summary_sent", day.Date)
		if s.Hooks.Summary != nil {
			s.Hooks.Summary(ctx, day)
		}
	}
}
