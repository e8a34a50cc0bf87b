package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishJSON(t *testing.T) {
	bus := NewEventBus()

	var got []Event
	bus.Subscribe(AppointmentConfirmed, func(e Event) error {
		got = append(got, e)
		return errors.New("ignored")
	})
	bus.Subscribe(AppointmentConfirmed, func(e Event) error {
		got = append(got, e)
		return nil
	})

	require.NoError(t, bus.PublishJSON(AppointmentConfirmed, AppointmentPayload{AppointmentID: "a-1", Room: "R-1"}))
	require.NoError(t, bus.PublishJSON(AppointmentRejected, AppointmentPayload{AppointmentID: "a-2"}))

	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())

	var p AppointmentPayload
	require.NoError(t, got[1].Decode(&p))
	assert.Equal(t, "a-1", p.AppointmentID)
	assert.Equal(t, "R-1", p.Room)
}

func TestEventBus_PublishJSONEncodeError(t *testing.T) {
	bus := NewEventBus()
	assert.Error(t, bus.PublishJSON(AppointmentCanceled, make(chan int)))
}
