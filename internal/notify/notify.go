// Package notify tells front-desk staff about appointment lifecycle changes.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"clinic/internal/events"
)

// Notifier delivers a single appointment notification.
type Notifier interface {
	Notify(ctx context.Context, eventType string, p events.AppointmentPayload) error
}

// Subscriber is the part of the event bus the dispatcher needs.
type Subscriber interface {
	Subscribe(eventType string, handler events.EventHandler)
}

// NotifiedEvents are forwarded to the notifier.
var NotifiedEvents = []string{
	events.AppointmentConfirmed,
	events.AppointmentRejected,
	events.AppointmentCanceled,
	events.AppointmentCancelRequest,
	events.AppointmentCancelApproved,
	events.AppointmentCancelDenied,
}

// Dispatcher hands bus events to a notifier without blocking the publisher.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   zerolog.Logger
	done     func() // test hook, called after each delivery attempt
}

func NewDispatcher(n Notifier, timeout time.Duration, logger *zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		notifier: n,
		timeout:  timeout,
		logger:   logger.With().Str("component", "notify").Logger(),
		done:     func() {},
	}
}

// Register subscribes the dispatcher to every notified event type.
func (d *Dispatcher) Register(bus Subscriber) {
	for _, t := range NotifiedEvents {
		bus.Subscribe(t, d.handle)
	}
}

func (d *Dispatcher) handle(e events.Event) error {
	var p events.AppointmentPayload
	if err := e.Decode(&p); err != nil {
		d.logger.Error().Err(err).Str("event", e.Type).Msg("Failed to decode event payload")
		return err
	}
	go func() {
		defer d.done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.notifier.Notify(ctx, e.Type, p); err != nil {
			d.logger.Warn().Err(err).
				Str("event", e.Type).
				Str("appointment_id", p.AppointmentID).
				Msg("Notification failed")
		}
	}()
	return nil
}

// LogNotifier writes notifications to the log. It is used when no Telegram
// bot is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, eventType string, p events.AppointmentPayload) error {
	n.logger.Info().
		Str("event", eventType).
		Str("appointment_id", p.AppointmentID).
		Str("owner_id", p.OwnerID).
		Str("status", p.Status).
		Msg(Format(eventType, p))
	return nil
}

// Format renders a human readable message for the event.
func Format(eventType string, p events.AppointmentPayload) string {
	var b strings.Builder
	switch eventType {
	case events.AppointmentConfirmed:
		b.WriteString("✅ Appointment confirmed")
	case events.AppointmentRejected:
		b.WriteString("❌ Appointment rejected")
	case events.AppointmentCanceled:
		b.WriteString("🗑 Appointment canceled")
	case events.AppointmentCancelRequest:
		b.WriteString("⏳ Cancellation requested, approval needed")
	case events.AppointmentCancelApproved:
		b.WriteString("🗑 Cancellation approved")
	case events.AppointmentCancelDenied:
		b.WriteString("↩️ Cancellation denied")
	default:
		b.WriteString(eventType)
	}

	code := p.Code
	if code == "" {
		code = p.AppointmentID
	}
	fmt.Fprintf(&b, "\n%s · doctor %s (%s)", code, p.DoctorID, p.Department)
	fmt.Fprintf(&b, "\n%s %s-%s UTC",
		p.StartTime.UTC().Format("02.01.2006"),
		p.StartTime.UTC().Format("15:04"),
		p.EndTime.UTC().Format("15:04"))
	if p.Room != "" {
		fmt.Fprintf(&b, "\nRoom: %s", p.Room)
	}
	if p.SlotReleased {
		b.WriteString("\nSlot released")
	}
	return b.String()
}
