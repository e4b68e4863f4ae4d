package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Gobinathr25/Supertrend/pkg/broker"
	"github.com/Gobinathr25/Supertrend/pkg/db"
)

// fakeBroker scripts placement outcomes per call.
type fakeBroker struct {
	mu     sync.Mutex
	placed []broker.OrderRequest

	// script[i] drives the i-th PlaceMarketOrder call.
	script []func(req broker.OrderRequest) (broker.OrderReport, error)

	// byTag answers OrderStatusByTag; missing tags yield ErrOrderNotFound.
	byTag map[string]broker.OrderReport
	// byID answers OrderStatus.
	byID map[string]broker.OrderReport
	// tagErr, when set, fails every OrderStatusByTag call.
	tagErr error
}

func (f *fakeBroker) PlaceMarketOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.placed)
	f.placed = append(f.placed, req)
	if i < len(f.script) {
		return f.script[i](req)
	}
	return broker.OrderReport{OrderID: "ord-" + req.Tag, Status: broker.StatusFilled, AvgPrice: 100}, nil
}

func (f *fakeBroker) OrderStatus(ctx context.Context, orderID string) (broker.OrderReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.byID[orderID]; ok {
		return r, nil
	}
	return broker.OrderReport{}, broker.ErrOrderNotFound
}

func (f *fakeBroker) OrderStatusByTag(ctx context.Context, tag string) (broker.OrderReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tagErr != nil {
		return broker.OrderReport{}, f.tagErr
	}
	if r, ok := f.byTag[tag]; ok {
		return r, nil
	}
	return broker.OrderReport{}, broker.ErrOrderNotFound
}

func (f *fakeBroker) Quote(ctx context.Context, symbol string) (float64, error) {
	return 100, nil
}

func (f *fakeBroker) Funds(ctx context.Context) (broker.Funds, error) {
	return broker.Funds{Available: 1000000}, nil
}

func (f *fakeBroker) placements() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

func newTestExecutor(t *testing.T, fb broker.Broker) (*Executor, *db.Database) {
	t.Helper()
	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.ApplyMigrations(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := NewExecutor(fb, d)
	e.RetryDelay = time.Millisecond
	e.PollDelay = time.Millisecond
	return e, d
}

func entryIntent() Intent {
	return Intent{
		Kind:         KindEntry,
		Leg:          "CE",
		Symbol:       "NSE:NIFTY27AUG2624500CE",
		Qty:          50,
		Side:         broker.Sell,
		Date:         "2026-08-24",
		ReentryIndex: 0,
	}
}

func exitIntent() Intent {
	return Intent{
		Kind:    KindExit,
		Leg:     "CE",
		Symbol:  "NSE:NIFTY27AUG2624500CE",
		Qty:     50,
		Side:    broker.Buy,
		Date:    "2026-08-24",
		TradeID: "trade-1",
		Reason:  "STOP_LOSS",
	}
}

func transportError(req broker.OrderRequest) (broker.OrderReport, error) {
	return broker.OrderReport{}, errors.New("connection reset")
}

func TestExecuteFillsOnFirstAttempt(t *testing.T) {
	fb := &fakeBroker{}
	e, _ := newTestExecutor(t, fb)

	report, err := e.Execute(context.Background(), entryIntent())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if report.Status != broker.StatusFilled || report.AvgPrice != 100 {
		t.Errorf("report = %+v", report)
	}
	if fb.placements() != 1 {
		t.Errorf("placements = %d, want 1", fb.placements())
	}
}

func TestDuplicateIntentSuppressed(t *testing.T) {
	fb := &fakeBroker{}
	e, _ := newTestExecutor(t, fb)
	ctx := context.Background()

	if _, err := e.Execute(ctx, entryIntent()); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	_, err := e.Execute(ctx, entryIntent())
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second execute err = %v, want ErrDuplicate", err)
	}
	if fb.placements() != 1 {
		t.Errorf("placements = %d, want 1", fb.placements())
	}
}

func TestEntryDedupSurvivesRestart(t *testing.T) {
	fb := &fakeBroker{}
	e, d := newTestExecutor(t, fb)
	ctx := context.Background()

	in := entryIntent()
	// A trade persisted by a previous process carries the same key.
	err := d.CreateTrade(ctx, db.Trade{
		ID: uuid.NewString(), TradeDate: in.Date, Symbol: in.Symbol,
		Leg: in.Leg, Qty: in.Qty, EntryPrice: 100, EntryTime: time.Now(),
		Status: "OPEN", DedupKey: in.DedupKey(),
	})
	if err != nil {
		t.Fatalf("seed trade: %v", err)
	}

	if _, err := e.Execute(ctx, in); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
	if fb.placements() != 0 {
		t.Errorf("placements = %d, want 0", fb.placements())
	}
}

func TestRetryAfterProvenAbsence(t *testing.T) {
	fb := &fakeBroker{script: []func(broker.OrderRequest) (broker.OrderReport, error){
		transportError, // tag lookup finds nothing -> retry allowed
	}}
	e, _ := newTestExecutor(t, fb)

	report, err := e.Execute(context.Background(), entryIntent())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if report.Status != broker.StatusFilled {
		t.Errorf("report = %+v", report)
	}
	if fb.placements() != 2 {
		t.Errorf("placements = %d, want 2", fb.placements())
	}
}

func TestTimeoutResolvedByStatusCheck(t *testing.T) {
	in := entryIntent()
	fb := &fakeBroker{
		script: []func(broker.OrderRequest) (broker.OrderReport, error){transportError},
		byTag: map[string]broker.OrderReport{
			in.DedupKey(): {OrderID: "ord-1", Status: broker.StatusFilled, AvgPrice: 101.5},
		},
	}
	e, _ := newTestExecutor(t, fb)

	report, err := e.Execute(context.Background(), in)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if report.AvgPrice != 101.5 {
		t.Errorf("report = %+v", report)
	}
	// The lost submit actually landed; no second order goes out.
	if fb.placements() != 1 {
		t.Errorf("placements = %d, want 1", fb.placements())
	}
}

func TestRejectionIsTerminal(t *testing.T) {
	fb := &fakeBroker{script: []func(broker.OrderRequest) (broker.OrderReport, error){
		func(req broker.OrderRequest) (broker.OrderReport, error) {
			return broker.OrderReport{Status: broker.StatusRejected, Message: "margin shortfall"}, nil
		},
	}}
	e, _ := newTestExecutor(t, fb)

	_, err := e.Execute(context.Background(), entryIntent())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if fb.placements() != 1 {
		t.Errorf("placements = %d, want 1 (no retry on rejection)", fb.placements())
	}
}

func TestExhaustedAfterBoundedRetries(t *testing.T) {
	fb := &fakeBroker{script: []func(broker.OrderRequest) (broker.OrderReport, error){
		transportError, transportError, transportError, transportError,
	}}
	e, _ := newTestExecutor(t, fb)

	_, err := e.Execute(context.Background(), entryIntent())
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if fb.placements() != e.MaxAttempts {
		t.Errorf("placements = %d, want %d", fb.placements(), e.MaxAttempts)
	}
}

func TestPendingOrderPolledToFill(t *testing.T) {
	fb := &fakeBroker{
		script: []func(broker.OrderRequest) (broker.OrderReport, error){
			func(req broker.OrderRequest) (broker.OrderReport, error) {
				return broker.OrderReport{OrderID: "ord-slow", Status: broker.StatusPending}, nil
			},
		},
		byID: map[string]broker.OrderReport{
			"ord-slow": {OrderID: "ord-slow", Status: broker.StatusFilled, AvgPrice: 99},
		},
	}
	e, _ := newTestExecutor(t, fb)

	report, err := e.Execute(context.Background(), entryIntent())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if report.AvgPrice != 99 {
		t.Errorf("report = %+v", report)
	}
}

// gateBroker parks placements on a channel so a second caller can race
// the first one mid-submission.
type gateBroker struct {
	fakeBroker
	entered chan struct{}
	release chan struct{}
}

func (g *gateBroker) PlaceMarketOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderReport, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.fakeBroker.PlaceMarketOrder(ctx, req)
}

func TestConcurrentSameExitSubmitsOnce(t *testing.T) {
	gb := &gateBroker{entered: make(chan struct{}, 2), release: make(chan struct{})}
	e, _ := newTestExecutor(t, gb)
	in := exitIntent()

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := e.Execute(context.Background(), in)
			results <- err
		}()
	}

	// One caller is inside the broker, unfilled. The other must already
	// be suppressed: waiting for the fill is too late to dedupe.
	<-gb.entered
	close(gb.release)

	var filled, dups int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			filled++
		case errors.Is(err, ErrDuplicate):
			dups++
		default:
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if filled != 1 || dups != 1 {
		t.Errorf("filled=%d dups=%d, want 1/1", filled, dups)
	}
	if gb.placements() != 1 {
		t.Errorf("placements = %d, want 1", gb.placements())
	}
}

func TestRejectionReleasesKey(t *testing.T) {
	fb := &fakeBroker{script: []func(broker.OrderRequest) (broker.OrderReport, error){
		func(req broker.OrderRequest) (broker.OrderReport, error) {
			return broker.OrderReport{Status: broker.StatusRejected, Message: "margin shortfall"}, nil
		},
	}}
	e, _ := newTestExecutor(t, fb)
	ctx := context.Background()

	if _, err := e.Execute(ctx, exitIntent()); !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	// Nothing is outstanding after a refusal; the same exit may retry.
	report, err := e.Execute(ctx, exitIntent())
	if err != nil {
		t.Fatalf("retry after rejection: %v", err)
	}
	if report.Status != broker.StatusFilled {
		t.Errorf("report = %+v", report)
	}
	if fb.placements() != 2 {
		t.Errorf("placements = %d, want 2", fb.placements())
	}
}

func TestUnknownOutcomeKeepsKeyReserved(t *testing.T) {
	fb := &fakeBroker{
		script: []func(broker.OrderRequest) (broker.OrderReport, error){transportError},
		tagErr: errors.New("status endpoint down"),
	}
	e, _ := newTestExecutor(t, fb)
	ctx := context.Background()

	if _, err := e.Execute(ctx, exitIntent()); !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	// The order may have landed; the key must stay reserved so a retry
	// cannot double-fill behind the operator's back.
	if _, err := e.Execute(ctx, exitIntent()); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
	if fb.placements() != 1 {
		t.Errorf("placements = %d, want 1", fb.placements())
	}
}

func TestReconcileVoidsUnfilledTrades(t *testing.T) {
	fb := &fakeBroker{byID: map[string]broker.OrderReport{
		"ord-bad": {OrderID: "ord-bad", Status: broker.StatusRejected},
		"ord-ok":  {OrderID: "ord-ok", Status: broker.StatusFilled},
	}}
	_, d := newTestExecutor(t, fb)
	ctx := context.Background()

	bad := db.Trade{
		ID: uuid.NewString(), TradeDate: "2026-08-24", Symbol: "NSE:NIFTY27AUG2624500CE",
		Leg: "CE", Qty: 50, EntryPrice: 100, EntryTime: time.Now(),
		Status: "OPEN", BrokerOrderID: "ord-bad", DedupKey: uuid.NewString(),
	}
	good := db.Trade{
		ID: uuid.NewString(), TradeDate: "2026-08-24", Symbol: "NSE:NIFTY27AUG2624500PE",
		Leg: "PE", Qty: 50, EntryPrice: 90, EntryTime: time.Now(),
		Status: "OPEN", BrokerOrderID: "ord-ok", DedupKey: uuid.NewString(),
	}
	for _, tr := range []db.Trade{bad, good} {
		if err := d.CreateTrade(ctx, tr); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	disc, err := Reconcile(ctx, fb, d)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(disc) != 1 || disc[0].TradeID != bad.ID {
		t.Fatalf("discrepancies = %+v", disc)
	}

	voided, err := d.GetTrade(ctx, bad.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if voided.Status != "CLOSED" || voided.PnL != 0 || voided.ExitReason != "RECONCILE_VOID" {
		t.Errorf("voided trade = %+v", voided)
	}

	kept, err := d.GetTrade(ctx, good.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if kept.Status != "OPEN" {
		t.Errorf("good trade touched: %+v", kept)
	}
}
