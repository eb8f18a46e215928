package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventMessageReceived EventType = "MESSAGE_RECEIVED"
	EventMessageIgnored  EventType = "MESSAGE_IGNORED"
	EventActionEmitted   EventType = "ACTION_EMITTED"
	EventActionExecuted  EventType = "ACTION_EXECUTED"
	EventReviewQueued    EventType = "REVIEW_QUEUED"
	EventRiskFreeApplied EventType = "RISK_FREE_APPLIED"
	EventGroupClosed     EventType = "GROUP_CLOSED"
	EventCatalogReloaded EventType = "CATALOG_RELOADED"
	EventServiceStarted  EventType = "SERVICE_STARTED"
	EventServiceStopped  EventType = "SERVICE_STOPPED"
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
	allSubs     []Subscriber
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

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Subscribers run in goroutines so a slow consumer cannot stall
	// the dispatch loop.
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishActionEmitted publishes an action emitted event
func (eb *EventBus) PublishActionEmitted(actionID, actionType, groupKey string, legCount int) {
	eb.Publish(Event{
		Type: EventActionEmitted,
		Data: map[string]interface{}{
			"action_id": actionID,
			"type":      actionType,
			"group_key": groupKey,
			"legs":      legCount,
		},
	})
}

// PublishReviewQueued publishes a review queued event
func (eb *EventBus) PublishReviewQueued(reason string, chatID, msgID int64) {
	eb.Publish(Event{
		Type: EventReviewQueued,
		Data: map[string]interface{}{
			"reason":  reason,
			"chat_id": chatID,
			"msg_id":  msgID,
		},
	})
}

// PublishRiskFreeApplied publishes a risk-free completion event
func (eb *EventBus) PublishRiskFreeApplied(groupKey string, newStop float64, cancelled, modified int) {
	eb.Publish(Event{
		Type: EventRiskFreeApplied,
		Data: map[string]interface{}{
			"group_key": groupKey,
			"new_stop":  newStop,
			"cancelled": cancelled,
			"modified":  modified,
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
