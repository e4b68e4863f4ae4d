package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the strategy engine.
type Config struct {
	Port string

	// Fyers credentials (runtime-injected; start() rejects empty ones in real mode)
	FyersClientID    string
	FyersSecretKey   string
	FyersAccessToken string

	// Telegram
	TelegramBotToken string
	TelegramChatID   string

	// Execution
	TradeMode string // "real" or "paper"

	// Strategy parameters
	STPeriod      int
	STMultiplier  float64
	ATRSmoothing  string // "ema" or "wilder"
	CandleMinutes int

	// Risk limits
	MaxDailyLoss    float64
	MaxTradesPerDay int
	LotSize         int
	ScalingEnabled  bool

	// Session boundaries (wall clock, HH:MM in MarketTimezone)
	MarketOpen     string
	EntryCutoff    string
	SquareOff      string
	MarketTimezone string

	// Database
	DBPath string

	// Auth
	JWTSecret string

	// Optional YAML override file for strategy/risk parameters
	StrategyFile string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		FyersClientID:    os.Getenv("FYERS_CLIENT_ID"),
		FyersSecretKey:   os.Getenv("FYERS_SECRET_KEY"),
		FyersAccessToken: os.Getenv("FYERS_ACCESS_TOKEN"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		TradeMode:        strings.ToLower(getEnv("TRADE_MODE", "paper")),
		STPeriod:         getEnvInt("ST_PERIOD", 10),
		STMultiplier:     getEnvFloat("ST_MULTIPLIER", 3.0),
		ATRSmoothing:     strings.ToLower(getEnv("ATR_SMOOTHING", "ema")),
		CandleMinutes:    getEnvInt("CANDLE_MINUTES", 3),
		MaxDailyLoss:     getEnvFloat("MAX_DAILY_LOSS", 10000),
		MaxTradesPerDay:  getEnvInt("MAX_TRADES_PER_DAY", 20),
		LotSize:          getEnvInt("LOT_SIZE", 50),
		ScalingEnabled:   getEnv("SCALING_ENABLED", "true") == "true",
		MarketOpen:       getEnv("MARKET_OPEN", "09:15"),
		EntryCutoff:      getEnv("LAST_ENTRY", "14:45"),
		SquareOff:        getEnv("FORCE_EXIT", "15:15"),
		MarketTimezone:   getEnv("MARKET_TZ", "Asia/Kolkata"),
		DBPath:           getEnv("DB_PATH", "./data/supertrend.db"),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret"),
		StrategyFile:     getEnv("STRATEGY_CONFIG", "strategy.yaml"),
	}

	if cfg.StrategyFile != "" {
		if err := cfg.applyStrategyFile(cfg.StrategyFile); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the engine cannot trade with.
func (c *Config) Validate() error {
	if c.TradeMode != "real" && c.TradeMode != "paper" {
		return fmt.Errorf("invalid TRADE_MODE %q (want real or paper)", c.TradeMode)
	}
	if c.ATRSmoothing != "ema" && c.ATRSmoothing != "wilder" {
		return fmt.Errorf("invalid ATR_SMOOTHING %q (want ema or wilder)", c.ATRSmoothing)
	}
	if c.STPeriod < 2 {
		return fmt.Errorf("ST_PERIOD must be >= 2, got %d", c.STPeriod)
	}
	if c.STMultiplier <= 0 {
		return fmt.Errorf("ST_MULTIPLIER must be positive, got %v", c.STMultiplier)
	}
	if c.CandleMinutes <= 0 {
		return fmt.Errorf("CANDLE_MINUTES must be positive, got %d", c.CandleMinutes)
	}
	if c.LotSize <= 0 {
		return fmt.Errorf("LOT_SIZE must be positive, got %d", c.LotSize)
	}
	if c.MaxDailyLoss <= 0 {
		return fmt.Errorf("MAX_DAILY_LOSS must be positive, got %v", c.MaxDailyLoss)
	}
	if c.MaxTradesPerDay <= 0 {
		return fmt.Errorf("MAX_TRADES_PER_DAY must be positive, got %d", c.MaxTradesPerDay)
	}
	for _, v := range []string{c.MarketOpen, c.EntryCutoff, c.SquareOff} {
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("invalid session time %q: %w", v, err)
		}
	}
	if _, err := time.LoadLocation(c.MarketTimezone); err != nil {
		return fmt.Errorf("invalid MARKET_TZ %q: %w", c.MarketTimezone, err)
	}
	return nil
}

// Location resolves the market timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
