package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobinathr25/Supertrend/internal/api"
	"github.com/Gobinathr25/Supertrend/internal/engine"
	"github.com/Gobinathr25/Supertrend/internal/events"
	"github.com/Gobinathr25/Supertrend/internal/market"
	"github.com/Gobinathr25/Supertrend/internal/notify"
	"github.com/Gobinathr25/Supertrend/internal/risk"
	"github.com/Gobinathr25/Supertrend/internal/strategy"
	"github.com/Gobinathr25/Supertrend/pkg/broker"
	"github.com/Gobinathr25/Supertrend/pkg/broker/fyers"
	"github.com/Gobinathr25/Supertrend/pkg/broker/paper"
	"github.com/Gobinathr25/Supertrend/pkg/config"
	"github.com/Gobinathr25/Supertrend/pkg/db"
)

const paperFunds = 1_000_000

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.Printf("supertrend engine starting (mode=%s, port=%s)", cfg.TradeMode, cfg.Port)
	log.Printf("using database %s", cfg.DBPath)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	bus := events.NewBus()
	notifier := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)

	gate := risk.NewGate(risk.Limits{
		MaxDailyLoss:    cfg.MaxDailyLoss,
		MaxTradesPerDay: cfg.MaxTradesPerDay,
		LotSize:         cfg.LotSize,
		ScalingEnabled:  cfg.ScalingEnabled,
	})

	var (
		brk    broker.Broker
		stream broker.TickStream
		marker engine.PriceMarker
	)
	switch cfg.TradeMode {
	case "real":
		if cfg.FyersClientID == "" || cfg.FyersAccessToken == "" {
			log.Fatal("real mode needs FYERS_CLIENT_ID and FYERS_ACCESS_TOKEN")
		}
		brk = fyers.NewClient(cfg.FyersClientID, cfg.FyersAccessToken)
		stream = fyers.NewStreamClient(cfg.FyersClientID, cfg.FyersAccessToken)
	default: // paper
		pb := paper.New(paperFunds)
		// Seed the spot so ATM symbol resolution works before the
		// first tick arrives.
		pb.MarkPrice(fyers.SpotSymbol, 24500)
		brk = pb
		marker = pb
		if cfg.FyersClientID != "" && cfg.FyersAccessToken != "" {
			// Paper fills against the live feed.
			stream = fyers.NewStreamClient(cfg.FyersClientID, cfg.FyersAccessToken)
		} else {
			log.Println("no Fyers credentials, using synthetic tick feed")
			stream = &market.MockStream{}
		}
	}

	smoothing := strategy.SmoothingEMA
	if cfg.ATRSmoothing == "wilder" {
		smoothing = strategy.SmoothingWilder
	}

	eng, err := engine.New(engine.Config{
		TradeMode:      cfg.TradeMode,
		STPeriod:       cfg.STPeriod,
		STMultiplier:   cfg.STMultiplier,
		Smoothing:      smoothing,
		CandleInterval: time.Duration(cfg.CandleMinutes) * time.Minute,
		SpotSymbol:     fyers.SpotSymbol,
		MarketOpen:     cfg.MarketOpen,
		EntryCutoff:    cfg.EntryCutoff,
		SquareOff:      cfg.SquareOff,
		Location:       cfg.Location(),
	}, engine.Deps{
		DB:       database,
		Bus:      bus,
		Broker:   brk,
		Stream:   stream,
		Notifier: notifier,
		Gate:     gate,
		Marker:   marker,
	})
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		// Not fatal: the operator can retry via POST /api/engine/start
		// once the upstream problem (token, feed) is fixed.
		log.Printf("engine start: %v", err)
	}

	server := api.NewServer(bus, database, eng, cfg.JWTSecret)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := eng.Stop(stopCtx); err != nil {
		log.Printf("engine stop: %v", err)
	}
}
