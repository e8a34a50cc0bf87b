// Package booking books appointments onto schedule slots and drives their lifecycle.
package booking

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"clinic/internal/clock"
	"clinic/internal/db"
	"clinic/internal/events"
	"clinic/internal/model"
)

// Store provides appointment and schedule persistence.
type Store interface {
	SchedulesForDay(ctx context.Context, employeeID string, day time.Time, activeOnly bool) ([]model.Schedule, error)
	BookSlot(ctx context.Context, a *model.Appointment) error
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	TransitionAppointment(ctx context.Context, id string, t db.Transition) (bool, error)
}

// AvailabilityInvalidator is told when a doctor's free slots change.
type AvailabilityInvalidator interface {
	Invalidate(ctx context.Context, doctorID string)
}

// Publisher receives lifecycle events.
type Publisher interface {
	PublishJSON(eventType string, payload any) error
}

// Service provides booking and appointment lifecycle operations.
type Service struct {
	store       Store
	invalidator AvailabilityInvalidator
	publisher   Publisher
	policy      Policy
	clock       clock.Clock
	logger      zerolog.Logger
}

// NewService creates a booking service. invalidator and publisher may be nil.
func NewService(
	store Store,
	invalidator AvailabilityInvalidator,
	publisher Publisher,
	policy Policy,
	clk clock.Clock,
	logger *zerolog.Logger,
) *Service {
	return &Service{
		store:       store,
		invalidator: invalidator,
		publisher:   publisher,
		policy:      policy.withDefaults(),
		clock:       clk,
		logger:      logger.With().Str("component", "booking").Logger(),
	}
}

func (s *Service) invalidate(ctx context.Context, doctorID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, doctorID)
	}
}

func (s *Service) publish(eventType string, a *model.Appointment, actorID string, released bool) {
	if s.publisher == nil {
		return
	}
	payload := events.AppointmentPayload{
		AppointmentID: a.ID,
		Code:          a.Code,
		OwnerID:       a.OwnerID,
		DoctorID:      a.DoctorID,
		Department:    a.Department,
		Status:        string(a.Status),
		StartTime:     a.TimeSlot.StartTime,
		EndTime:       a.TimeSlot.EndTime,
		Room:          a.Room,
		ActorID:       actorID,
		SlotReleased:  released,
	}
	if err := s.publisher.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Str("appointment_id", a.ID).Msg("Failed to publish event")
	}
}
