package position

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Gobinathr25/Supertrend/pkg/db"
)

const testDate = "2026-08-24"

func newTestManager(t *testing.T) (*Manager, *db.Database) {
	t.Helper()
	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.ApplyMigrations(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	m := NewManager(d)
	if err := m.Load(context.Background(), testDate); err != nil {
		t.Fatalf("load: %v", err)
	}
	return m, d
}

func entryTrade(legName string, reentry, qty int, price float64) db.Trade {
	return db.Trade{
		ID:           uuid.NewString(),
		TradeDate:    testDate,
		Symbol:       "NSE:NIFTY27AUG2624500" + legName,
		Leg:          legName,
		Qty:          qty,
		EntryPrice:   price,
		EntryTime:    time.Date(2026, 8, 24, 9, 33, 0, 0, time.UTC),
		ReentryIndex: reentry,
		Status:       "OPEN",
		DedupKey:     uuid.NewString(),
	}
}

func TestSingleOpenPerLeg(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.ApplyEntryFill(ctx, entryTrade(LegCE, 0, 50, 120)); err != nil {
		t.Fatalf("first entry: %v", err)
	}
	if !m.HasOpen(LegCE) {
		t.Fatal("leg not open after fill")
	}
	if err := m.ApplyEntryFill(ctx, entryTrade(LegCE, 0, 50, 118)); err == nil {
		t.Fatal("second entry on open leg accepted")
	}
	// Other leg is independent.
	if err := m.ApplyEntryFill(ctx, entryTrade(LegPE, 0, 50, 95)); err != nil {
		t.Fatalf("pe entry: %v", err)
	}
}

func TestScalingSequenceStopsAfterThreeEntries(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	exitAt := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	for i := 0; i < MaxEntries; i++ {
		if m.Stopped(LegCE) {
			t.Fatalf("leg stopped before entry %d", i)
		}
		if got := m.ReentryIndex(LegCE); got != i {
			t.Fatalf("reentry index = %d, want %d", got, i)
		}
		qty := 50 * (i + 1)
		if err := m.ApplyEntryFill(ctx, entryTrade(LegCE, i, qty, 120)); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
		closed, err := m.ApplyExitFill(ctx, LegCE, 130, exitAt, ReasonStopLoss)
		if err != nil {
			t.Fatalf("exit %d: %v", i, err)
		}
		wantPnL := (120.0 - 130.0) * float64(qty)
		if closed.PnL != wantPnL {
			t.Errorf("exit %d pnl = %v, want %v", i, closed.PnL, wantPnL)
		}
	}

	if !m.Stopped(LegCE) {
		t.Fatal("leg not stopped after third stop-loss")
	}
	if err := m.ApplyEntryFill(ctx, entryTrade(LegCE, 3, 150, 110)); err == nil {
		t.Fatal("fourth entry accepted on stopped leg")
	}
}

func TestSquareOffKeepsReentryBudget(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.ApplyEntryFill(ctx, entryTrade(LegPE, 0, 50, 95)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	_, err := m.ApplyExitFill(ctx, LegPE, 80, time.Now(), ReasonSquareOff)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if m.ReentryIndex(LegPE) != 0 {
		t.Errorf("square-off consumed re-entry budget: %d", m.ReentryIndex(LegPE))
	}
	if m.Stopped(LegPE) {
		t.Error("square-off stopped the leg")
	}
}

func TestExitWithoutOpenRejected(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.ApplyExitFill(context.Background(), LegCE, 100, time.Now(), ReasonStopLoss); err == nil {
		t.Fatal("exit on idle leg accepted")
	}
}

func TestMarkStopped(t *testing.T) {
	m, d := newTestManager(t)
	ctx := context.Background()

	m.MarkStopped(ctx, LegCE)
	if !m.Stopped(LegCE) {
		t.Fatal("leg not stopped")
	}
	row, err := d.GetReentry(ctx, testDate, LegCE)
	if err != nil {
		t.Fatalf("reentry row: %v", err)
	}
	if !row.IsStopped {
		t.Error("stop not persisted")
	}
}

func TestLoadRecoversState(t *testing.T) {
	m, d := newTestManager(t)
	ctx := context.Background()

	if err := m.ApplyEntryFill(ctx, entryTrade(LegCE, 0, 50, 120)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if _, err := m.ApplyExitFill(ctx, LegCE, 130, time.Now(), ReasonStopLoss); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if err := m.ApplyEntryFill(ctx, entryTrade(LegPE, 0, 50, 95)); err != nil {
		t.Fatalf("pe entry: %v", err)
	}

	// Fresh manager over the same database, as after a restart.
	m2 := NewManager(d)
	if err := m2.Load(ctx, testDate); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := m2.ReentryIndex(LegCE); got != 1 {
		t.Errorf("ce reentry index = %d, want 1", got)
	}
	if !m2.HasOpen(LegPE) {
		t.Error("pe open trade not recovered")
	}
	tr, ok := m2.OpenTrade(LegPE)
	if !ok || tr.EntryPrice != 95 {
		t.Errorf("recovered trade = %+v", tr)
	}
}

func TestUnrealizedPnL(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.ApplyEntryFill(ctx, entryTrade(LegCE, 0, 50, 120)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	m.MarkPrice("NSE:NIFTY27AUG2624500CE", 110)
	if got := m.UnrealizedPnL(); got != 500 {
		t.Errorf("unrealized = %v, want 500", got)
	}

	snaps := m.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d", len(snaps))
	}
	if snaps[0].Leg != LegCE || snaps[0].UnrealizedPnL != 500 {
		t.Errorf("ce snapshot = %+v", snaps[0])
	}
}
