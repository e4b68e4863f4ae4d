package events

// Event enumerates high-level topics inside the engine.
type Event string

const (
	EventPriceTick    Event = "price_tick"
	EventCandleClosed Event = "candle_closed"
	EventSignal       Event = "signal"
	EventTradeOpened  Event = "trade_opened"
	EventTradeClosed  Event = "trade_closed"
	EventRiskAlert    Event = "risk_alert"
	EventDailySummary Event = "daily_summary"
	EventEngineState  Event = "engine_state"
)
