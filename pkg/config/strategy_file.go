package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// strategyFile is the optional YAML override for strategy and risk
// parameters. Zero values leave the env-derived setting untouched.
type strategyFile struct {
	Strategy struct {
		Period        int     `yaml:"period"`
		Multiplier    float64 `yaml:"multiplier"`
		Smoothing     string  `yaml:"smoothing"`
		CandleMinutes int     `yaml:"candle_minutes"`
	} `yaml:"strategy"`
	Risk struct {
		MaxDailyLoss    float64 `yaml:"max_daily_loss"`
		MaxTradesPerDay int     `yaml:"max_trades_per_day"`
		LotSize         int     `yaml:"lot_size"`
		ScalingEnabled  *bool   `yaml:"scaling_enabled"`
	} `yaml:"risk"`
	Session struct {
		MarketOpen  string `yaml:"market_open"`
		EntryCutoff string `yaml:"entry_cutoff"`
		SquareOff   string `yaml:"square_off"`
		Timezone    string `yaml:"timezone"`
	} `yaml:"session"`
}

// applyStrategyFile merges overrides from path. A missing file is not an
// error; a malformed one is.
func (c *Config) applyStrategyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read strategy config: %w", err)
	}

	var f strategyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse strategy config %s: %w", path, err)
	}

	if f.Strategy.Period > 0 {
		c.STPeriod = f.Strategy.Period
	}
	if f.Strategy.Multiplier > 0 {
		c.STMultiplier = f.Strategy.Multiplier
	}
	if f.Strategy.Smoothing != "" {
		c.ATRSmoothing = f.Strategy.Smoothing
	}
	if f.Strategy.CandleMinutes > 0 {
		c.CandleMinutes = f.Strategy.CandleMinutes
	}
	if f.Risk.MaxDailyLoss > 0 {
		c.MaxDailyLoss = f.Risk.MaxDailyLoss
	}
	if f.Risk.MaxTradesPerDay > 0 {
		c.MaxTradesPerDay = f.Risk.MaxTradesPerDay
	}
	if f.Risk.LotSize > 0 {
		c.LotSize = f.Risk.LotSize
	}
	if f.Risk.ScalingEnabled != nil {
		c.ScalingEnabled = *f.Risk.ScalingEnabled
	}
	if f.Session.MarketOpen != "" {
		c.MarketOpen = f.Session.MarketOpen
	}
	if f.Session.EntryCutoff != "" {
		c.EntryCutoff = f.Session.EntryCutoff
	}
	if f.Session.SquareOff != "" {
		c.SquareOff = f.Session.SquareOff
	}
	if f.Session.Timezone != "" {
		c.MarketTimezone = f.Session.Timezone
	}
	return nil
}
