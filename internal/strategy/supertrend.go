package strategy

import (
	"math"

	"github.com/Gobinathr25/Supertrend/internal/market"
)

// Smoothing selects the ATR average.
type Smoothing string

const (
	// SmoothingEMA uses alpha = 2/(period+1), seeded with the first
	// true range. Matches pandas ewm(span=period, adjust=False).
	SmoothingEMA Smoothing = "ema"
	// SmoothingWilder uses alpha = 1/period, seeded with an SMA of the
	// first period true ranges.
	SmoothingWilder Smoothing = "wilder"
)

// Direction of the trend under the supertrend line.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionUp
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "UP"
	case DirectionDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// Value is the indicator state after one candle.
type Value struct {
	Supertrend float64
	// Direction is DirectionUnknown until the indicator is Valid.
	Direction Direction
	UpperBand float64
	LowerBand float64
	ATR       float64
	// Distance is |close - supertrend| for the last folded candle.
	Distance float64
	// Valid is false during warmup (first period+1 candles).
	Valid bool
}

// Supertrend computes the indicator incrementally, one closed candle at
// a time. Replaying the same candle sequence through a fresh instance
// reproduces the same values, so restart recovery can rebuild state
// from stored candles.
type Supertrend struct {
	period     int
	multiplier float64
	smoothing  Smoothing

	count      int
	prevClose  float64
	atr        float64
	trSum      float64 // wilder seed accumulator
	finalUpper float64
	finalLower float64
	line       float64
	direction  Direction
}

// NewSupertrend builds the calculator. period and multiplier follow the
// usual Supertrend(10,3) parameterization.
func NewSupertrend(period int, multiplier float64, smoothing Smoothing) *Supertrend {
	return &Supertrend{period: period, multiplier: multiplier, smoothing: smoothing}
}

func (s *Supertrend) trueRange(c market.Candle) float64 {
	if s.count == 0 {
		return c.High - c.Low
	}
	return math.Max(c.High-c.Low,
		math.Max(math.Abs(c.High-s.prevClose), math.Abs(c.Low-s.prevClose)))
}

func (s *Supertrend) updateATR(tr float64) {
	switch s.smoothing {
	case SmoothingWilder:
		if s.count < s.period {
			s.trSum += tr
			s.atr = s.trSum / float64(s.count+1)
			return
		}
		s.atr = (s.atr*float64(s.period-1) + tr) / float64(s.period)
	default: // ema
		if s.count == 0 {
			s.atr = tr
			return
		}
		alpha := 2.0 / float64(s.period+1)
		s.atr = alpha*tr + (1-alpha)*s.atr
	}
}

// Update folds one closed candle in and returns the new value.
func (s *Supertrend) Update(c market.Candle) Value {
	tr := s.trueRange(c)
	s.updateATR(tr)

	hl2 := (c.High + c.Low) / 2
	basicUpper := hl2 + s.multiplier*s.atr
	basicLower := hl2 - s.multiplier*s.atr

	if s.count == 0 {
		s.finalUpper = basicUpper
		s.finalLower = basicLower
		// Start on the upper band; the first decisive close flips it.
		s.line = basicUpper
		s.direction = DirectionDown
	} else {
		// Bands only tighten until price closes beyond them.
		prevUpper, prevLower := s.finalUpper, s.finalLower
		if basicUpper < prevUpper || s.prevClose > prevUpper {
			s.finalUpper = basicUpper
		}
		if basicLower > prevLower || s.prevClose < prevLower {
			s.finalLower = basicLower
		}

		if s.line == prevUpper {
			if c.Close <= s.finalUpper {
				s.line = s.finalUpper
				s.direction = DirectionDown
			} else {
				s.line = s.finalLower
				s.direction = DirectionUp
			}
		} else {
			if c.Close >= s.finalLower {
				s.line = s.finalLower
				s.direction = DirectionUp
			} else {
				s.line = s.finalUpper
				s.direction = DirectionDown
			}
		}
	}

	s.prevClose = c.Close
	s.count++

	return s.value()
}

func (s *Supertrend) value() Value {
	v := Value{
		Supertrend: s.line,
		Direction:  s.direction,
		UpperBand:  s.finalUpper,
		LowerBand:  s.finalLower,
		ATR:        s.atr,
		Distance:   s.CurrentDistance(),
		Valid:      s.count >= s.period+1,
	}
	if !v.Valid {
		v.Direction = DirectionUnknown
	}
	return v
}

// Last returns the value after the most recent update.
func (s *Supertrend) Last() Value {
	return s.value()
}

// CurrentDistance is how far the last close sits from the line.
func (s *Supertrend) CurrentDistance() float64 {
	if s.count == 0 {
		return 0
	}
	return math.Abs(s.prevClose - s.line)
}

// Count reports how many candles have been folded in.
func (s *Supertrend) Count() int {
	return s.count
}
