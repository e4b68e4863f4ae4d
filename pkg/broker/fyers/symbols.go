package fyers

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// NIFTY strikes are spaced 50 points apart.
const niftyStrikeStep = 50

// SpotSymbol is the NIFTY index symbol on the Fyers data feed.
const SpotSymbol = "NSE:NIFTY50-INDEX"

// ATMStrike rounds a spot price to the nearest NIFTY strike.
func ATMStrike(spot float64) int {
	return int(math.Round(spot/niftyStrikeStep)) * niftyStrikeStep
}

// NextWeeklyExpiry returns the next weekly expiry (Thursday) on or after
// the given time. If now is already past Thursday's session it rolls to
// the following week.
func NextWeeklyExpiry(now time.Time) time.Time {
	day := now
	for day.Weekday() != time.Thursday {
		day = day.AddDate(0, 0, 1)
	}
	// Same-day expiry is still tradeable during market hours.
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
}

// OptionSymbol builds the weekly option symbol in DDMMMYY form,
// e.g. NSE:NIFTY27AUG2624500CE for 2026-08-27 strike 24500.
func OptionSymbol(expiry time.Time, strike int, optType string) string {
	return fmt.Sprintf("NSE:NIFTY%02d%s%02d%d%s",
		expiry.Day(),
		strings.ToUpper(expiry.Format("Jan")),
		expiry.Year()%100,
		strike,
		strings.ToUpper(optType),
	)
}

// ATMSymbols resolves the at-the-money CE and PE symbols for a spot price.
func ATMSymbols(spot float64, now time.Time) (ce, pe string) {
	strike := ATMStrike(spot)
	expiry := NextWeeklyExpiry(now)
	return OptionSymbol(expiry, strike, "CE"), OptionSymbol(expiry, strike, "PE")
}
