package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Gobinathr25/Supertrend/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEvents are the bus events streamed to dashboard clients. Price
// ticks are deliberately excluded: at NIFTY tick rates they would
// swamp a browser, and the status endpoint carries the latest prices.
var wsEvents = []events.Event{
	events.EventCandleClosed,
	events.EventSignal,
	events.EventTradeOpened,
	events.EventTradeClosed,
	events.EventRiskAlert,
	events.EventDailySummary,
	events.EventEngineState,
}

type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	out := make(chan wsEnvelope, 256)
	done := make(chan struct{})

	for _, ev := range wsEvents {
		stream, unsub := s.Bus.Subscribe(ev, 64)
		defer unsub()
		go func(name events.Event, stream <-chan any) {
			for msg := range stream {
				select {
				case out <- wsEnvelope{Type: string(name), Data: msg}:
				case <-done:
					return
				}
			}
		}(ev, stream)
	}

	// Reader loop only detects disconnects; clients never send data.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case env := <-out:
			if err := conn.WriteJSON(env); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
