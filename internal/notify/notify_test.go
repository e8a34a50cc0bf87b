package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic/internal/events"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func payload() events.AppointmentPayload {
	return events.AppointmentPayload{
		AppointmentID: "a-1",
		Code:          "APT-000001",
		DoctorID:      "doc-1",
		Department:    "cardiology",
		Status:        "confirmed",
		StartTime:     time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC),
		EndTime:       time.Date(2025, 1, 10, 8, 30, 0, 0, time.UTC),
		Room:          "B-204",
	}
}

func TestFormat(t *testing.T) {
	msg := Format(events.AppointmentConfirmed, payload())
	assert.Contains(t, msg, "Appointment confirmed")
	assert.Contains(t, msg, "APT-000001")
	assert.Contains(t, msg, "10.01.2025 08:00-08:30")
	assert.Contains(t, msg, "Room: B-204")

	p := payload()
	p.Code, p.Room, p.SlotReleased = "", "", true
	msg = Format(events.AppointmentCancelApproved, p)
	assert.Contains(t, msg, "a-1")
	assert.Contains(t, msg, "Slot released")
	assert.NotContains(t, msg, "Room")
}

func TestTelegramNotifier_Send(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, 42, 100, 1)

	require.NoError(t, n.Notify(context.Background(), events.AppointmentRejected, payload()))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "rejected")

	sender.err = errors.New("boom")
	assert.Error(t, n.Notify(context.Background(), events.AppointmentRejected, payload()))
}

func TestTelegramNotifier_ContextCanceled(t *testing.T) {
	n := NewTelegramNotifier(&fakeSender{}, 1, 0.001, 1)
	require.NoError(t, n.Notify(context.Background(), events.AppointmentConfirmed, payload()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, n.Notify(ctx, events.AppointmentConfirmed, payload()))
}

func TestDispatcher_FireAndForget(t *testing.T) {
	logger := zerolog.Nop()
	sender := &fakeSender{}
	d := NewDispatcher(NewTelegramNotifier(sender, 7, 100, 5), time.Second, &logger)

	var wg sync.WaitGroup
	d.done = wg.Done

	bus := events.NewEventBus()
	d.Register(bus)

	wg.Add(2)
	require.NoError(t, bus.PublishJSON(events.AppointmentConfirmed, payload()))
	require.NoError(t, bus.PublishJSON(events.AppointmentCancelApproved, payload()))
	require.NoError(t, bus.PublishJSON("appointment.unrelated", payload()))
	wg.Wait()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Len(t, sender.sent, 2)
}

func TestDispatcher_FailureDoesNotPropagate(t *testing.T) {
	logger := zerolog.Nop()
	d := NewDispatcher(NewTelegramNotifier(&fakeSender{err: errors.New("down")}, 7, 100, 5), time.Second, &logger)

	var wg sync.WaitGroup
	d.done = wg.Done
	bus := events.NewEventBus()
	d.Register(bus)

	wg.Add(1)
	assert.NotPanics(t, func() {
		require.NoError(t, bus.PublishJSON(events.AppointmentRejected, payload()))
	})
	wg.Wait()
}

func TestLogNotifier(t *testing.T) {
	logger := zerolog.Nop()
	assert.NoError(t, NewLogNotifier(&logger).Notify(context.Background(), events.AppointmentCanceled, payload()))
}
