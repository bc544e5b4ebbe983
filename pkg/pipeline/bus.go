package pipeline

import (
	"context"
	"sync"
	"time"
)

type EventType int

const (
	EventError EventType = iota
	EventWarning
	EventVADSpeechStart
	EventVADSpeechEnd
	EventResponseStart
	EventResponseEnd
	EventInterrupted
	EventAudioPause
	EventAudioResume
)

// Event is a control-plane notification published on the pipeline bus,
// out of band with respect to the media flowing through element channels.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// InterruptSource identifies who decided to interrupt the model's response.
type InterruptSource int

const (
	InterruptSourceVAD InterruptSource = iota
	InterruptSourceModel
	InterruptSourceClient
)

// ResponseStartPayload accompanies EventResponseStart.
type ResponseStartPayload struct {
	ResponseID string
}

// ResponseEndPayload accompanies EventResponseEnd.
type ResponseEndPayload struct {
	ResponseID string
	Completed  bool
	Reason     string
}

// InterruptPayload accompanies EventInterrupted.
type InterruptPayload struct {
	Source        InterruptSource
	ResponseID    string
	InterruptedAt int64 // unix millis
	Reason        string
}

// Bus delivers events to subscribed channels. Publish never blocks: events
// are dropped for subscribers whose channel is full.
type Bus interface {
	Subscribe(eventType EventType, ch chan Event)
	Unsubscribe(eventType EventType, ch chan Event)
	Publish(evt Event) bool
	Start(ctx context.Context) error
	Stop()
}

type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	running     bool
}

var _ Bus = (*EventBus)(nil)

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
	}
}

func (b *EventBus) Subscribe(eventType EventType, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
}

func (b *EventBus) Unsubscribe(eventType EventType, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers evt to every subscriber of its type. It reports whether
// the event was delivered to all of them; a full subscriber channel causes
// the event to be dropped for that subscriber.
func (b *EventBus) Publish(evt Event) bool {
	b.mu.RLock()
	subs := b.subscribers[evt.Type]
	b.mu.RUnlock()

	delivered := true
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			delivered = false
		}
	}
	return delivered
}

// Start is idempotent; the bus has no background work of its own, the flag
// only guards double start/stop during pipeline lifecycle churn.
func (b *EventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
	return nil
}

func (b *EventBus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
}
