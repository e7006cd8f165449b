package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeOpened     EventType = "TRADE_OPENED"
	EventTradeClosed     EventType = "TRADE_CLOSED"
	EventStopMoved       EventType = "STOP_MOVED"
	EventBotStarted      EventType = "BOT_STARTED"
	EventBotStopped      EventType = "BOT_STOPPED"
	EventCircuitBreaker  EventType = "CIRCUIT_BREAKER"
	EventMarketRefreshed EventType = "MARKET_REFRESHED"
	EventSettingsChanged EventType = "SETTINGS_CHANGED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. A nil bus drops the event so
// components can run without one in tests.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking the trading loop
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(platform, ticket, commodity, strategy, side string, entryPrice, volume float64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"platform":    platform,
			"ticket":      ticket,
			"commodity":   commodity,
			"strategy":    strategy,
			"side":        side,
			"entry_price": entryPrice,
			"volume":      volume,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(platform, ticket, symbol, reason string, exitPrice, pnl float64) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"platform":   platform,
			"ticket":     ticket,
			"symbol":     symbol,
			"reason":     reason,
			"exit_price": exitPrice,
			"pnl":        pnl,
		},
	})
}

// PublishStopMoved publishes a trailing stop adjustment
func (eb *EventBus) PublishStopMoved(platform, ticket string, oldStop, newStop float64) {
	eb.Publish(Event{
		Type: EventStopMoved,
		Data: map[string]interface{}{
			"platform": platform,
			"ticket":   ticket,
			"old_stop": oldStop,
			"new_stop": newStop,
		},
	})
}

// PublishBotStatus publishes a bot started or stopped event
func (eb *EventBus) PublishBotStatus(running bool, reason string) {
	eventType := EventBotStopped
	if running {
		eventType = EventBotStarted
	}
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"running": running,
			"reason":  reason,
		},
	})
}

// PublishCircuitBreaker publishes a circuit breaker state change
func (eb *EventBus) PublishCircuitBreaker(state, reason string, consecutiveLosses int, hourlyLoss, dailyLoss float64) {
	eb.Publish(Event{
		Type: EventCircuitBreaker,
		Data: map[string]interface{}{
			"state":              state,
			"reason":             reason,
			"consecutive_losses": consecutiveLosses,
			"hourly_loss":        hourlyLoss,
			"daily_loss":         dailyLoss,
		},
	})
}

// PublishMarketRefreshed publishes the result of a market data refresh
func (eb *EventBus) PublishMarketRefreshed(updated, failed int) {
	eb.Publish(Event{
		Type: EventMarketRefreshed,
		Data: map[string]interface{}{
			"updated": updated,
			"failed":  failed,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string) {
	eb.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"source":  source,
			"message": message,
		},
	})
}

// PublishSettingsChanged publishes a settings update made through the API
func (eb *EventBus) PublishSettingsChanged(source string, autoTrading bool) {
	eb.Publish(Event{
		Type: EventSettingsChanged,
		Data: map[string]interface{}{
			"source":       source,
			"auto_trading": autoTrading,
		},
	})
}
