// Package schedule owns the trading-day clock: session boundaries, the
// forced square-off, the daily summary, and the midnight rollover.
package schedule

import (
	"fmt"
	"time"
)

// DayContext pins one trading day's boundaries as absolute instants.
// It is an immutable value; rollover builds a fresh one wholesale so no
// consumer can observe a half-updated day.
type DayContext struct {
	Date        string
	Location    *time.Location
	MarketOpen  time.Time
	EntryCutoff time.Time
	SquareOff   time.Time
}

func at(day time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("15:04", hhmm, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session time %q: %w", hhmm, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

// NewDayContext builds the day containing now from HH:MM boundaries.
func NewDayContext(now time.Time, loc *time.Location, open, cutoff, squareOff string) (DayContext, error) {
	local := now.In(loc)
	d := DayContext{
		Date:     local.Format("2006-01-02"),
		Location: loc,
	}
	var err error
	if d.MarketOpen, err = at(local, open, loc); err != nil {
		return DayContext{}, err
	}
	if d.EntryCutoff, err = at(local, cutoff, loc); err != nil {
		return DayContext{}, err
	}
	if d.SquareOff, err = at(local, squareOff, loc); err != nil {
		return DayContext{}, err
	}
	if !d.MarketOpen.Before(d.EntryCutoff) || !d.EntryCutoff.Before(d.SquareOff) {
		return DayContext{}, fmt.Errorf("session boundaries out of order: %s %s %s", open, cutoff, squareOff)
	}
	return d, nil
}

// SameDay reports whether t falls on this context's calendar day.
func (d DayContext) SameDay(t time.Time) bool {
	return t.In(d.Location).Format("2006-01-02") == d.Date
}

// InSession reports whether t is inside [open, squareOff).
func (d DayContext) InSession(t time.Time) bool {
	return !t.Before(d.MarketOpen) && t.Before(d.SquareOff)
}

// PastSquareOff reports whether t has reached the forced exit time.
func (d DayContext) PastSquareOff(t time.Time) bool {
	return !t.Before(d.SquareOff)
}
