package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Gobinathr25/Supertrend/internal/events"
	"github.com/Gobinathr25/Supertrend/internal/market"
	"github.com/Gobinathr25/Supertrend/internal/notify"
	"github.com/Gobinathr25/Supertrend/internal/order"
	"github.com/Gobinathr25/Supertrend/internal/persistence"
	"github.com/Gobinathr25/Supertrend/internal/position"
	"github.com/Gobinathr25/Supertrend/internal/risk"
	"github.com/Gobinathr25/Supertrend/internal/schedule"
	"github.com/Gobinathr25/Supertrend/internal/strategy"
	"github.com/Gobinathr25/Supertrend/pkg/broker"
	"github.com/Gobinathr25/Supertrend/pkg/broker/fyers"
	"github.com/Gobinathr25/Supertrend/pkg/db"
)

// Config carries the strategy and session parameters.
type Config struct {
	TradeMode      string
	STPeriod       int
	STMultiplier   float64
	Smoothing      strategy.Smoothing
	CandleInterval time.Duration
	SpotSymbol     string
	MarketOpen     string
	EntryCutoff    string
	SquareOff      string
	Location       *time.Location
}

// PriceMarker receives every tick. The paper broker implements it so
// its fills track the live feed.
type PriceMarker interface {
	MarkPrice(symbol string, ltp float64)
}

// SymbolResolver picks the day's option symbols from the spot price.
type SymbolResolver func(ctx context.Context, b broker.Broker, spotSymbol string, now time.Time) (ce, pe string, err error)

// ResolveATM is the default resolver: quote the index, round to the
// nearest strike, nearest weekly expiry.
func ResolveATM(ctx context.Context, b broker.Broker, spotSymbol string, now time.Time) (string, string, error) {
	spot, err := b.Quote(ctx, spotSymbol)
	if err != nil {
		return "", "", fmt.Errorf("quote %s: %w", spotSymbol, err)
	}
	ce, pe := fyers.ATMSymbols(spot, now)
	return ce, pe, nil
}

// Deps are the engine's collaborators.
type Deps struct {
	DB       *db.Database
	Bus      *events.Bus
	Broker   broker.Broker
	Stream   broker.TickStream
	Notifier *notify.Telegram
	Gate     *risk.Gate
	// Marker is optional; set to the paper broker in paper mode.
	Marker PriceMarker
	// Resolve is optional; defaults to ResolveATM.
	Resolve SymbolResolver
}

type legRunner struct {
	name   string
	symbol string
	ticks  chan broker.Tick
	agg    *market.Aggregator
	signal *strategy.Engine
	queue  *order.Queue
}

// Engine runs the supertrend option-selling strategy. Each leg owns one
// goroutine that folds ticks into candles and evaluates signals, and
// one ordered intent queue that serializes its orders.
type Engine struct {
	cfg      Config
	db       *db.Database
	bus      *events.Bus
	broker   broker.Broker
	stream   broker.TickStream
	notifier *notify.Telegram
	gate     *risk.Gate
	marker   PriceMarker
	resolve  SymbolResolver

	positions *position.Manager
	executor  *order.Executor
	scheduler *schedule.Scheduler
	logs      *persistence.BatchWriter

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	stopFeed func()
	wg       sync.WaitGroup
	legs     map[string]*legRunner

	spotPrice float64
	funds     broker.Funds

	// now is injectable for tests.
	now func() time.Time
}

// New builds a stopped engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	e := &Engine{
		cfg:       cfg,
		db:        deps.DB,
		bus:       deps.Bus,
		broker:    deps.Broker,
		stream:    deps.Stream,
		notifier:  deps.Notifier,
		gate:      deps.Gate,
		marker:    deps.Marker,
		resolve:   deps.Resolve,
		positions: position.NewManager(deps.DB),
		executor:  order.NewExecutor(deps.Broker, deps.DB),
		logs:      persistence.NewBatchWriter(deps.DB.DB, 50, time.Second),
		legs:      make(map[string]*legRunner),
		now:       time.Now,
	}
	if e.resolve == nil {
		e.resolve = ResolveATM
	}

	sched, err := schedule.NewScheduler(deps.DB, cfg.Location, cfg.MarketOpen, cfg.EntryCutoff, cfg.SquareOff, schedule.Hooks{
		SquareOff: e.squareOffAll,
		Summary:   e.sendSummary,
		Rollover:  e.rollover,
	})
	if err != nil {
		return nil, err
	}
	sched.Clock = func() time.Time { return e.now() }
	e.scheduler = sched
	return e, nil
}

// Start resolves symbols, recovers state and begins trading.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("engine already running")
	}

	day := e.scheduler.Day()

	ce, pe, err := e.resolve(ctx, e.broker, e.cfg.SpotSymbol, e.now().In(e.cfg.Location))
	if err != nil {
		return fmt.Errorf("resolve symbols: %w", err)
	}
	log.Printf("engine: trading %s / %s for %s", ce, pe, day.Date)

	// Recover the day's counters and open positions.
	e.gate.ResetDay(day.Date)
	dp, err := e.db.GetDailyPnL(ctx, day.Date)
	if err != nil {
		return fmt.Errorf("load daily pnl: %w", err)
	}
	trades, err := e.db.ListTradesByDate(ctx, day.Date)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	e.gate.Seed(day.Date, dp.TotalPnL, len(trades))
	if err := e.positions.Load(ctx, day.Date); err != nil {
		return fmt.Errorf("load positions: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	symbols := map[string]string{position.LegCE: ce, position.LegPE: pe}
	for _, name := range position.Legs {
		l := &legRunner{
			name:   name,
			symbol: symbols[name],
			ticks:  make(chan broker.Tick, 256),
			agg:    market.NewAggregator(e.cfg.CandleInterval),
			signal: strategy.NewEngine(name, e.cfg.STPeriod, e.cfg.STMultiplier, e.cfg.Smoothing),
			queue:  order.NewQueue(64),
		}
		e.legs[name] = l
		e.warmupLeg(ctx, l, day)

		e.wg.Add(2)
		go func() {
			defer e.wg.Done()
			e.runLeg(runCtx, l)
		}()
		go func() {
			defer e.wg.Done()
			l.queue.Drain(runCtx, func(in order.Intent) {
				e.handleIntent(runCtx, in)
				if in.Done != nil {
					close(in.Done)
				}
			})
		}()
	}

	feed := &market.Feed{
		Stream:  e.stream,
		Bus:     e.bus,
		Symbols: []string{e.cfg.SpotSymbol, ce, pe},
		Handler: e.route,
	}
	stopFeed, err := feed.Start(runCtx)
	if err != nil {
		cancel()
		e.legs = make(map[string]*legRunner)
		return fmt.Errorf("start feed: %w", err)
	}
	e.stopFeed = stopFeed

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.scheduler.Run(runCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.refreshMargin(runCtx)
	}()

	e.running = true
	e.bus.Publish(events.EventEngineState, "RUNNING")
	return nil
}

// Stop halts trading, reconciles open orders against the broker and
// reports discrepancies.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return errors.New("engine not running")
	}
	e.running = false
	cancel := e.cancel
	stopFeed := e.stopFeed
	e.mu.Unlock()

	if stopFeed != nil {
		stopFeed()
	}
	cancel()
	e.wg.Wait()

	if err := e.logs.Flush(); err != nil {
		log.Printf("engine: flush strategy logs: %v", err)
	}

	e.mu.Lock()
	e.legs = make(map[string]*legRunner)
	e.mu.Unlock()

	disc, err := order.Reconcile(ctx, e.broker, e.db)
	if err != nil {
		log.Printf("engine: reconcile on stop: %v", err)
	}
	for _, d := range disc {
		log.Printf("engine: reconcile %s %s: local=%s broker=%s (%s)", d.TradeID, d.Symbol, d.Local, d.Broker, d.Action)
	}

	e.bus.Publish(events.EventEngineState, "STOPPED")
	log.Println("engine: stopped")
	return nil
}

// route fans one tick out to marks and the owning leg. Runs on the feed
// goroutine.
func (e *Engine) route(tk broker.Tick) {
	if e.marker != nil {
		e.marker.MarkPrice(tk.Symbol, tk.LTP)
	}
	e.positions.MarkPrice(tk.Symbol, tk.LTP)

	e.mu.Lock()
	if tk.Symbol == e.cfg.SpotSymbol {
		e.spotPrice = tk.LTP
	}
	var target *legRunner
	for _, l := range e.legs {
		if l.symbol == tk.Symbol {
			target = l
			break
		}
	}
	e.mu.Unlock()

	if target == nil {
		return
	}
	select {
	case target.ticks <- tk:
	default:
		// Leg is behind; the next tick supersedes this one.
	}
}

func (e *Engine) runLeg(ctx context.Context, l *legRunner) {
	flush := time.NewTicker(10 * time.Second)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tk := <-l.ticks:
			if c, closed := l.agg.Apply(tk); closed {
				e.onCandle(ctx, l, c)
			}
		case now := <-flush.C:
			if c, closed := l.agg.Flush(now.In(e.cfg.Location)); closed {
				e.onCandle(ctx, l, c)
			}
		}
	}
}

// warmupLeg replays the session's historical candles through the
// signal engine so a mid-session start does not wait out the indicator
// period on live data. Brokers without a history API are skipped.
func (e *Engine) warmupLeg(ctx context.Context, l *legRunner, day schedule.DayContext) {
	h, ok := e.broker.(broker.Historian)
	if !ok {
		return
	}
	now := e.now().In(e.cfg.Location)
	if !now.After(day.MarketOpen) {
		return
	}

	bars, err := h.History(ctx, l.symbol, e.cfg.CandleInterval, day.MarketOpen, now)
	if err != nil {
		log.Printf("engine: %s warmup history: %v", l.name, err)
		return
	}

	// Drop the still-forming bar; live ticks will complete it.
	cutoff := now.Truncate(e.cfg.CandleInterval)
	candles := make([]market.Candle, 0, len(bars))
	for _, b := range bars {
		start := b.Time.In(e.cfg.Location)
		if !start.Before(cutoff) {
			continue
		}
		candles = append(candles, market.Candle{
			Symbol: l.symbol,
			Start:  start,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
		})
	}
	if len(candles) == 0 {
		return
	}
	l.signal.Warmup(candles)
	log.Printf("engine: %s warmed up on %d candles, indicator valid=%v", l.name, len(candles), l.signal.Last().Valid)
}

// onCandle evaluates one closed candle for a leg and enqueues the
// resulting intent, if any.
func (e *Engine) onCandle(ctx context.Context, l *legRunner, c market.Candle) {
	hasOpen := e.positions.HasOpen(l.name)
	sig, v := l.signal.Evaluate(c, hasOpen)

	e.bus.Publish(events.EventCandleClosed, c)
	if sig != strategy.SignalNone {
		e.bus.Publish(events.EventSignal, map[string]any{"leg": l.name, "signal": sig.String(), "close": c.Close})
	}
	e.logStrategy(l.name, fmt.Sprintf("candle close=%.2f st=%.2f dir=%s signal=%s", c.Close, v.Supertrend, v.Direction, sig), v)

	day := e.scheduler.Day()
	now := e.now().In(e.cfg.Location)

	switch sig {
	case strategy.SignalEntry:
		dec := e.gate.AdmitEntry(now, day.EntryCutoff, e.positions.Stopped(l.name))
		if !dec.Allowed {
			log.Printf("engine: %s entry blocked: %s", l.name, dec.Reason)
			return
		}
		idx := e.positions.ReentryIndex(l.name)
		l.queue.Enqueue(order.Intent{
			Kind:         order.KindEntry,
			Leg:          l.name,
			Symbol:       l.symbol,
			Qty:          e.gate.Qty(idx),
			Side:         broker.Sell,
			Date:         day.Date,
			ReentryIndex: idx,
			PriceHint:    c.Close,
		})
	case strategy.SignalExit:
		tr, ok := e.positions.OpenTrade(l.name)
		if !ok {
			return
		}
		l.queue.Enqueue(order.Intent{
			Kind:      order.KindExit,
			Leg:       l.name,
			Symbol:    tr.Symbol,
			Qty:       tr.Qty,
			Side:      broker.Buy,
			Date:      day.Date,
			TradeID:   tr.ID,
			Reason:    position.ReasonStopLoss,
			PriceHint: c.Close,
		})
	}
}

// handleIntent executes one intent and applies its fill. Intents are
// already serialized per leg, and the executor's dedup keys make a
// replay harmless.
func (e *Engine) handleIntent(ctx context.Context, in order.Intent) {
	report, err := e.executor.Execute(ctx, in)
	switch {
	case errors.Is(err, order.ErrDuplicate):
		return
	case errors.Is(err, order.ErrRejected):
		log.Printf("engine: %s rejected: %v", in, err)
		e.notifier.RiskAlert(fmt.Sprintf("%s rejected: %s", in, report.Message))
		return
	case errors.Is(err, order.ErrExhausted):
		// Outcome unknown after bounded retries: stop the leg rather
		// than guess at the position.
		log.Printf("engine: FATAL %s: %v", in, err)
		e.positions.MarkStopped(ctx, in.Leg)
		e.notifier.RiskAlert(fmt.Sprintf("%s leg stopped: order outcome unknown (%s)", in.Leg, in))
		e.bus.Publish(events.EventRiskAlert, map[string]any{"leg": in.Leg, "intent": in.String()})
		return
	case err != nil:
		log.Printf("engine: %s failed: %v", in, err)
		return
	}

	now := e.now().In(e.cfg.Location)
	if in.Kind == order.KindEntry {
		t := db.Trade{
			ID:            uuid.NewString(),
			TradeDate:     in.Date,
			Symbol:        in.Symbol,
			Leg:           in.Leg,
			Qty:           in.Qty,
			EntryPrice:    report.AvgPrice,
			EntryTime:     now,
			ReentryIndex:  in.ReentryIndex,
			Status:        "OPEN",
			BrokerOrderID: report.OrderID,
			DedupKey:      in.DedupKey(),
		}
		if err := e.positions.ApplyEntryFill(ctx, t); err != nil {
			log.Printf("engine: apply entry %s: %v", in.Leg, err)
			return
		}
		e.gate.RecordEntry()
		log.Printf("engine: %s SOLD %s qty=%d @ %.2f", in.Leg, in.Symbol, in.Qty, report.AvgPrice)
		e.notifier.Entry(t)
		e.bus.Publish(events.EventTradeOpened, t)
		return
	}

	closed, err := e.positions.ApplyExitFill(ctx, in.Leg, report.AvgPrice, now, in.Reason)
	if err != nil {
		log.Printf("engine: apply exit %s: %v", in.Leg, err)
		return
	}
	e.gate.RecordExit(closed.PnL)
	if err := e.db.UpsertDailyPnL(ctx, closed.TradeDate, closed.PnL); err != nil {
		log.Printf("engine: daily pnl: %v", err)
	}
	if err := e.db.UpdateMaxDrawdown(ctx, closed.TradeDate, e.gate.Snapshot().MaxDrawdown); err != nil {
		log.Printf("engine: drawdown: %v", err)
	}
	log.Printf("engine: %s EXIT %s @ %.2f pnl=%.2f (%s)", in.Leg, in.Symbol, report.AvgPrice, closed.PnL, in.Reason)
	e.notifier.Exit(closed)
	if e.positions.Stopped(in.Leg) {
		e.notifier.LegStopped(in.Leg, e.positions.ReentryIndex(in.Leg))
	}
	e.bus.Publish(events.EventTradeClosed, closed)
}

// squareOffAll force-closes every open leg. The exits go through the
// same per-leg queue as signal exits, so a queued stop-loss for the
// same trade can never run concurrently with the square-off; the hook
// then waits for completion so the summary sees final numbers.
func (e *Engine) squareOffAll(ctx context.Context, day schedule.DayContext) {
	e.mu.Lock()
	runners := make(map[string]*legRunner, len(e.legs))
	for name, l := range e.legs {
		runners[name] = l
	}
	e.mu.Unlock()

	var waits []chan struct{}
	for _, name := range position.Legs {
		tr, ok := e.positions.OpenTrade(name)
		if !ok {
			continue
		}
		in := order.Intent{
			Kind:    order.KindExit,
			Leg:     name,
			Symbol:  tr.Symbol,
			Qty:     tr.Qty,
			Side:    broker.Buy,
			Date:    day.Date,
			TradeID: tr.ID,
			Reason:  position.ReasonSquareOff,
		}
		l := runners[name]
		if l == nil {
			// No runner means the legs are not trading; nothing else
			// can race this exit.
			e.handleIntent(ctx, in)
			continue
		}
		in.Done = make(chan struct{})
		l.queue.Enqueue(in)
		waits = append(waits, in.Done)
	}

	for _, done := range waits {
		select {
		case <-ctx.Done():
			return
		case <-done:
		}
	}
}

func (e *Engine) sendSummary(ctx context.Context, day schedule.DayContext) {
	dp, err := e.db.GetDailyPnL(ctx, day.Date)
	if err != nil {
		log.Printf("engine: summary pnl: %v", err)
		return
	}
	m := e.gate.Snapshot()
	log.Printf("engine: daily summary %s: trades=%d pnl=%.2f drawdown=%.2f", day.Date, dp.TotalTrades, dp.TotalPnL, m.MaxDrawdown)
	e.notifier.Summary(day.Date, dp, m)
	e.bus.Publish(events.EventDailySummary, dp)
}

// rollover resets the per-day state for a new trading date. Symbols are
// re-resolved on the next Start; overnight the engine just idles.
func (e *Engine) rollover(ctx context.Context, day schedule.DayContext) {
	e.gate.ResetDay(day.Date)
	e.positions.ResetDay(day.Date)
	log.Printf("engine: reset for %s", day.Date)
}

func (e *Engine) refreshMargin(ctx context.Context) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			f, err := e.broker.Funds(ctx)
			if err != nil {
				log.Printf("engine: funds: %v", err)
				continue
			}
			e.mu.Lock()
			e.funds = f
			e.mu.Unlock()
		}
	}
}

// logStrategy buffers one structured log row; the batch writer flushes
// them off the trading path.
func (e *Engine) logStrategy(leg, msg string, v strategy.Value) {
	data, _ := json.Marshal(v)
	e.logs.WriteQuery(db.InsertStrategyLogSQL, e.now(), "INFO", leg, msg, string(data))
}

// Snapshot assembles the dashboard view.
func (e *Engine) Snapshot(ctx context.Context) Dashboard {
	e.mu.Lock()
	running := e.running
	spot := e.spotPrice
	funds := e.funds
	legIndicators := make(map[string]strategy.Value, len(e.legs))
	for name, l := range e.legs {
		legIndicators[name] = l.signal.Last()
	}
	e.mu.Unlock()

	day := e.scheduler.Day()
	legs := make([]LegView, 0, len(position.Legs))
	for _, s := range e.positions.Snapshots() {
		legs = append(legs, LegView{Snapshot: s, Supertrend: legIndicators[s.Leg]})
	}

	return Dashboard{
		Running:     running,
		TradeMode:   e.cfg.TradeMode,
		Date:        day.Date,
		ServerTime:  e.now().In(e.cfg.Location),
		SpotSymbol:  e.cfg.SpotSymbol,
		SpotPrice:   spot,
		Legs:        legs,
		Risk:        e.gate.Snapshot(),
		Unrealized:  e.positions.UnrealizedPnL(),
		MarginFree:  funds.Available,
		MarginUsed:  funds.Utilized,
		EntryCutoff: day.EntryCutoff,
		SquareOff:   day.SquareOff,
	}
}

// Positions returns both legs' snapshots.
func (e *Engine) Positions() []position.Snapshot {
	return e.positions.Snapshots()
}

// TodayTrades lists the current day's trades.
func (e *Engine) TodayTrades(ctx context.Context) ([]db.Trade, error) {
	return e.db.ListTradesByDate(ctx, e.scheduler.Day().Date)
}

// RiskLimits returns the gate's current limits.
func (e *Engine) RiskLimits() risk.Limits {
	return e.gate.Limits()
}

// UpdateRiskLimits swaps the gate's limits.
func (e *Engine) UpdateRiskLimits(l risk.Limits) error {
	return e.gate.UpdateLimits(l)
}
