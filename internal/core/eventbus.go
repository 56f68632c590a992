package core

import (
	"sync"
	"sync/atomic"
)

// EventType defines the type of event being published.
type EventType string

const (
	SettingsChangedEvent     EventType = "SettingsChanged"
	SwatchesChangedEvent     EventType = "SwatchesChanged"
	ConnectionChangedEvent   EventType = "ConnectionChanged"
	NotificationChangedEvent EventType = "NotificationChanged"
	PatternChangedEvent      EventType = "PatternChanged"
	LoopChangedEvent         EventType = "LoopChanged"
	SchedulesChangedEvent    EventType = "SchedulesChanged"
	PatternsChangedEvent     EventType = "PatternsChanged"
	PatternCodeEvent         EventType = "PatternCode"
)

// Event is the envelope for all system events.
type Event struct {
	Type    EventType
	Payload interface{}
}

// subscriberBuffer bounds how far a slow subscriber may lag before events to it are dropped.
const subscriberBuffer = 100

// Subscriber is a channel that receives events.
type Subscriber chan Event

// EventBus handles pub/sub messaging for the application.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	dropped     atomic.Uint64
}

// NewEventBus creates a new EventBus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe returns a channel that receives events of the given types.
func (eb *EventBus) Subscribe(eventTypes ...EventType) Subscriber {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(Subscriber, subscriberBuffer)
	for _, t := range eventTypes {
		eb.subscribers[t] = append(eb.subscribers[t], ch)
	}

	return ch
}

// Unsubscribe removes a subscriber channel.
func (eb *EventBus) Unsubscribe(ch Subscriber, eventTypes ...EventType) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, t := range eventTypes {
		subs := eb.subscribers[t]
		for i, sub := range subs {
			if sub == ch {
				eb.subscribers[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish distributes an event to all active subscribers for its type.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			select {
			case sub <- event:
			default:
				eb.dropped.Add(1)
			}
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (eb *EventBus) Dropped() uint64 {
	return eb.dropped.Load()
}
