package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Gobinathr25/Supertrend/pkg/broker"
	"github.com/Gobinathr25/Supertrend/pkg/db"
)

// Execution outcomes.
var (
	// ErrDuplicate means the intent's dedup key was already executed;
	// the caller must treat the earlier execution as authoritative.
	ErrDuplicate = errors.New("duplicate intent")
	// ErrRejected means the broker definitively refused the order.
	ErrRejected = errors.New("order rejected")
	// ErrExhausted means every attempt failed with an unknown outcome.
	// The leg must stop trading until an operator reconciles it.
	ErrExhausted = errors.New("order attempts exhausted")
)

// Executor submits intents to the broker with bounded retries. A retry
// is only issued after a status check proves the previous attempt never
// reached the broker; an attempt whose outcome stays unknown ends the
// sequence as ErrExhausted rather than risking a double fill.
type Executor struct {
	Broker broker.Broker
	DB     *db.Database

	// MaxAttempts bounds submissions per intent (default 3).
	MaxAttempts int
	// RetryDelay separates attempts (default 1s).
	RetryDelay time.Duration
	// PollDelay separates status polls for a pending order.
	PollDelay time.Duration

	mu   sync.Mutex
	keys map[string]keyState
}

type keyState int

const (
	keyInFlight keyState = iota + 1
	keyDone
)

// NewExecutor builds an executor with the default retry policy.
func NewExecutor(b broker.Broker, database *db.Database) *Executor {
	return &Executor{
		Broker:      b,
		DB:          database,
		MaxAttempts: 3,
		RetryDelay:  time.Second,
		PollDelay:   500 * time.Millisecond,
		keys:        make(map[string]keyState),
	}
}

// acquire reserves the key before any broker call. Reservation, not a
// check, is what suppresses duplicates: two callers racing the same
// intent cannot both pass, even while neither has filled yet.
func (e *Executor) acquire(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, held := e.keys[key]; held {
		return false
	}
	e.keys[key] = keyInFlight
	return true
}

// settle finishes a reservation. done keeps the key forever; otherwise
// it is released, but only callers that have proven no broker order is
// outstanding may release.
func (e *Executor) settle(key string, done bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if done {
		e.keys[key] = keyDone
		return
	}
	delete(e.keys, key)
}

// Execute submits one intent and returns the broker's fill report.
func (e *Executor) Execute(ctx context.Context, in Intent) (broker.OrderReport, error) {
	key := in.DedupKey()

	// Entries also dedupe against persisted trades so a restart cannot
	// resubmit an entry that already filled.
	if in.Kind == KindEntry && e.DB != nil {
		_, err := e.DB.FindTradeByDedupKey(ctx, key)
		if err == nil {
			log.Printf("executor: suppressed duplicate %s (%s)", in, key)
			return broker.OrderReport{}, ErrDuplicate
		}
		if !errors.Is(err, db.ErrNotFound) {
			return broker.OrderReport{}, fmt.Errorf("dedup check %s: %w", key, err)
		}
	}

	if !e.acquire(key) {
		log.Printf("executor: suppressed duplicate %s (%s)", in, key)
		return broker.OrderReport{}, ErrDuplicate
	}

	req := broker.OrderRequest{
		Symbol: in.Symbol,
		Qty:    in.Qty,
		Side:   in.Side,
		Tag:    key,
	}

	var lastErr error
	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		report, err := e.Broker.PlaceMarketOrder(ctx, req)
		if err != nil {
			// Transport failure: the order may or may not have reached
			// the broker. Resolve before even thinking about a retry.
			lastErr = err
			log.Printf("executor: %s attempt %d/%d failed: %v", in, attempt, e.MaxAttempts, err)

			resolved, rerr := e.Broker.OrderStatusByTag(ctx, key)
			if rerr == nil {
				report = resolved
			} else if errors.Is(rerr, broker.ErrOrderNotFound) {
				// Proven absent: safe to retry.
				if !e.sleep(ctx, e.RetryDelay) {
					e.settle(key, false)
					return broker.OrderReport{}, ctx.Err()
				}
				continue
			} else {
				// Outcome unknown; retrying could double-fill. The key
				// stays reserved until an operator reconciles.
				log.Printf("executor: %s status check failed: %v", in, rerr)
				return broker.OrderReport{}, fmt.Errorf("%w: %s", ErrExhausted, key)
			}
		}

		report, err = e.awaitTerminal(ctx, report)
		if err != nil {
			return broker.OrderReport{}, err
		}

		switch report.Status {
		case broker.StatusFilled:
			e.settle(key, true)
			return report, nil
		case broker.StatusRejected:
			// Definitive refusal, nothing outstanding at the broker;
			// a later intent with the same key may try again.
			e.settle(key, false)
			return report, fmt.Errorf("%w: %s: %s", ErrRejected, in, report.Message)
		case broker.StatusCancelled:
			lastErr = fmt.Errorf("order cancelled: %s", report.Message)
			if !e.sleep(ctx, e.RetryDelay) {
				e.settle(key, false)
				return broker.OrderReport{}, ctx.Err()
			}
		default:
			// Still pending after polling: outcome unknown, keep the
			// key reserved.
			return broker.OrderReport{}, fmt.Errorf("%w: %s stuck %s", ErrExhausted, key, report.Status)
		}
	}

	// Every attempt ended with the order proven absent or cancelled.
	e.settle(key, false)
	return broker.OrderReport{}, fmt.Errorf("%w: %s: %v", ErrExhausted, key, lastErr)
}

// awaitTerminal polls a pending order until it settles or the poll
// budget runs out.
func (e *Executor) awaitTerminal(ctx context.Context, report broker.OrderReport) (broker.OrderReport, error) {
	for i := 0; i < 5 && report.Status == broker.StatusPending; i++ {
		if !e.sleep(ctx, e.PollDelay) {
			return broker.OrderReport{}, ctx.Err()
		}
		r, err := e.Broker.OrderStatus(ctx, report.OrderID)
		if err != nil {
			log.Printf("executor: poll %s: %v", report.OrderID, err)
			continue
		}
		report = r
	}
	return report, nil
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
