// Package events is an in-process pub/sub bus for appointment lifecycle events.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

const (
	AppointmentConfirmed      = "appointment.confirmed"
	AppointmentRejected       = "appointment.rejected"
	AppointmentCanceled       = "appointment.canceled"
	AppointmentCancelRequest  = "appointment.cancel_requested"
	AppointmentCancelApproved = "appointment.cancel_approved"
	AppointmentCancelDenied   = "appointment.cancel_denied"
)

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into out.
func (e Event) Decode(out any) error {
	return json.Unmarshal(e.Payload, out)
}

// AppointmentPayload is carried by every appointment event.
type AppointmentPayload struct {
	AppointmentID string    `json:"appointmentId"`
	Code          string    `json:"code"`
	OwnerID       string    `json:"ownerId"`
	DoctorID      string    `json:"doctorId"`
	Department    string    `json:"department"`
	Status        string    `json:"status"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	Room          string    `json:"room,omitempty"`
	ActorID       string    `json:"actorId,omitempty"`
	SlotReleased  bool      `json:"slotReleased"`
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	seq         atomic.Int64
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handlers run synchronously
// in registration order; their errors are ignored.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == 0 {
		event.ID = b.seq.Add(1)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON encodes payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.Publish(Event{Type: eventType, Payload: data})
	return nil
}
