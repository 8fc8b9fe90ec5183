package rules

import (
	"sync"
	"time"
)

// EventType indicates the category of a rules event.
type EventType string

const (
	EventActionStarted   EventType = "ACTION_STARTED"
	EventActionSuspended EventType = "ACTION_SUSPENDED"
	EventActionResolved  EventType = "ACTION_RESOLVED"
	EventActionCancelled EventType = "ACTION_CANCELLED"
	EventModifierApplied EventType = "MODIFIER_APPLIED"
	EventEffectApplied   EventType = "EFFECT_APPLIED"
	EventEffectCancelled EventType = "EFFECT_CANCELLED"
	EventRequestFailed   EventType = "REQUEST_FAILED"

	// Raised by game actions through Game.Emit.
	EventCampaignResolved EventType = "CAMPAIGN_RESOLVED"
	EventTurnChanged      EventType = "TURN_CHANGED"
	EventGameOver         EventType = "GAME_OVER"
)

// Event represents a state change that other subsystems may react to.
type Event struct {
	Type      EventType         `json:"type"`
	GameID    string            `json:"game_id"`
	Player    string            `json:"player,omitempty"`
	Source    string            `json:"source,omitempty"`
	Target    string            `json:"target,omitempty"`
	Kind      string            `json:"kind,omitempty"` // action or effect kind
	Amount    int               `json:"amount,omitempty"`
	Data      string            `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle,
// whether it was registered for all events or for one type.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, listener := range bus.listeners {
		listener(event)
	}
	for _, listener := range bus.typedListeners[event.Type] {
		listener.Callback(event)
	}
}

// PublishBatch publishes events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}

// NewEvent creates a new event with common fields populated.
func NewEvent(eventType EventType, kind, player string) Event {
	return Event{
		Type:      eventType,
		Kind:      kind,
		Player:    player,
		Timestamp: time.Now(),
		Metadata:  make(map[string]string),
	}
}
