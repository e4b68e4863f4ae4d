package fyers

import (
	"testing"
	"time"
)

func TestATMStrike(t *testing.T) {
	tests := []struct {
		spot float64
		want int
	}{
		{24510.0, 24500},
		{24524.9, 24500},
		{24525.0, 24550},
		{24549.0, 24550},
		{24500.0, 24500},
		{19999.7, 20000},
	}
	for _, tc := range tests {
		if got := ATMStrike(tc.spot); got != tc.want {
			t.Errorf("ATMStrike(%v) = %d, want %d", tc.spot, got, tc.want)
		}
	}
}

func TestNextWeeklyExpiry(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"monday rolls to same week thursday",
			time.Date(2026, 8, 24, 10, 0, 0, 0, ist),
			time.Date(2026, 8, 27, 0, 0, 0, 0, ist),
		},
		{
			"thursday stays on thursday",
			time.Date(2026, 8, 27, 10, 0, 0, 0, ist),
			time.Date(2026, 8, 27, 0, 0, 0, 0, ist),
		},
		{
			"friday rolls to next thursday",
			time.Date(2026, 8, 28, 10, 0, 0, 0, ist),
			time.Date(2026, 9, 3, 0, 0, 0, 0, ist),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NextWeeklyExpiry(tc.now)
			if !got.Equal(tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOptionSymbol(t *testing.T) {
	expiry := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	if got := OptionSymbol(expiry, 24500, "CE"); got != "NSE:NIFTY27AUG2624500CE" {
		t.Errorf("CE symbol = %q", got)
	}
	if got := OptionSymbol(expiry, 24500, "PE"); got != "NSE:NIFTY27AUG2624500PE" {
		t.Errorf("PE symbol = %q", got)
	}
}

func TestATMSymbols(t *testing.T) {
	now := time.Date(2026, 8, 24, 9, 20, 0, 0, time.UTC)
	ce, pe := ATMSymbols(24487.3, now)
	if ce != "NSE:NIFTY27AUG2624500CE" {
		t.Errorf("ce = %q", ce)
	}
	if pe != "NSE:NIFTY27AUG2624500PE" {
		t.Errorf("pe = %q", pe)
	}
}
