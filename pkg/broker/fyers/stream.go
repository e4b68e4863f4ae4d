package fyers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Gobinathr25/Supertrend/pkg/broker"
)

const defaultStreamURL = "wss://socket.fyers.in/hsm/v1-5/prod"

// StreamClient streams live quotes from the Fyers data socket.
type StreamClient struct {
	ClientID    string
	AccessToken string
	StreamURL   string
	dialer      *websocket.Dialer
}

// NewStreamClient builds a websocket quote stream client.
func NewStreamClient(clientID, accessToken string) *StreamClient {
	return &StreamClient{
		ClientID:    clientID,
		AccessToken: accessToken,
		StreamURL:   defaultStreamURL,
		dialer:      websocket.DefaultDialer,
	}
}

type subscribeMessage struct {
	T       string   `json:"T"`
	Symbols []string `json:"symbols"`
	SubType string   `json:"sub_type"`
}

type tickMessage struct {
	Symbol string  `json:"symbol"`
	LTP    float64 `json:"ltp"`
	// Exchange timestamp, epoch seconds. Zero means use receive time.
	ExchTime int64 `json:"exch_feed_time"`
}

// Subscribe opens the data socket and emits ticks for the given symbols.
// The connection is re-dialed with backoff until ctx is cancelled or
// stop is called.
func (c *StreamClient) Subscribe(ctx context.Context, symbols []string) (<-chan broker.Tick, func(), error) {
	out := make(chan broker.Tick, 256)
	runCtx, cancel := context.WithCancel(ctx)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
		})
	}

	go func() {
		defer close(out)
		backoff := time.Second
		for {
			if runCtx.Err() != nil {
				return
			}
			if err := c.runOnce(runCtx, symbols, out); err != nil {
				if runCtx.Err() != nil {
					return
				}
				log.Printf("fyers stream: %v; reconnecting in %v", err, backoff)
			}
			select {
			case <-runCtx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()

	return out, stop, nil
}

func (c *StreamClient) runOnce(ctx context.Context, symbols []string, out chan<- broker.Tick) error {
	header := map[string][]string{
		"Authorization": {c.ClientID + ":" + c.AccessToken},
	}
	conn, _, err := c.dialer.DialContext(ctx, c.StreamURL, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := subscribeMessage{T: "SUB_DATA", Symbols: symbols, SubType: "symbolUpdate"}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// Unblock ReadMessage when the caller cancels.
	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var tm tickMessage
		if err := json.Unmarshal(msg, &tm); err != nil || tm.Symbol == "" || tm.LTP <= 0 {
			continue
		}
		ts := time.Now()
		if tm.ExchTime > 0 {
			ts = time.Unix(tm.ExchTime, 0)
		}
		select {
		case out <- broker.Tick{Symbol: tm.Symbol, LTP: tm.LTP, Time: ts}:
		default:
			// drop if the consumer lags; ticks are superseded anyway
		}
	}
}
