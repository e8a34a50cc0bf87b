// Package api exposes the scheduling services over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"clinic/internal/booking"
	"clinic/internal/model"
	"clinic/internal/slots"
	"clinic/internal/sweeper"
)

// ScheduleService creates schedules and answers availability queries.
type ScheduleService interface {
	CreateSchedule(ctx context.Context, req slots.CreateRequest) (*model.Schedule, error)
	GetSchedule(ctx context.Context, id string) (*model.Schedule, error)
	SetActive(ctx context.Context, id string, active bool) (*model.Schedule, error)
	WeekSlots(ctx context.Context, doctorID string, startDate time.Time) ([]model.SlotView, error)
}

// BookingService books appointments and drives their lifecycle.
type BookingService interface {
	Book(ctx context.Context, ownerID string, req booking.CreateRequest) (*model.Appointment, error)
	Get(ctx context.Context, actorID string, staff bool, id string) (*model.Appointment, error)
	Cancel(ctx context.Context, actorID, id string) (*model.Appointment, error)
	ApproveCancel(ctx context.Context, actorID, id string) (*model.Appointment, error)
	DenyCancel(ctx context.Context, actorID, id string) (*model.Appointment, error)
	Confirm(ctx context.Context, actorID, id, room string) (*model.Appointment, error)
	Reject(ctx context.Context, actorID, id string) (*model.Appointment, error)
	Complete(ctx context.Context, actorID, id string) (*model.Appointment, error)
}

// AttendanceService records attendance.
type AttendanceService interface {
	CheckIn(ctx context.Context, employeeID, scheduleID string) (*model.Attendance, error)
	CheckOut(ctx context.Context, employeeID, scheduleID string) (*model.Attendance, error)
	MarkOnLeave(ctx context.Context, scheduleID string) (*model.Attendance, error)
	ResetLeave(ctx context.Context, scheduleID string) error
	Get(ctx context.Context, scheduleID string) (*model.Attendance, error)
	ListMonth(ctx context.Context, month time.Time) ([]model.Attendance, error)
}

// SweepRunner triggers an absent sweep on demand.
type SweepRunner interface {
	RunNow(ctx context.Context) (sweeper.Result, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	JWTSecret    string
	Issuer       string
	RateRPS      float64
	RateBurst    int
}

type Deps struct {
	Schedules  ScheduleService
	Bookings   BookingService
	Attendance AttendanceService
	Sweeper    SweepRunner
	Ready      map[string]Pinger
}

// Server is the HTTP front of the clinic services.
type Server struct {
	config  Config
	deps    Deps
	limiter *rateLimiter
	logger  zerolog.Logger
	server  *http.Server
}

func NewServer(cfg Config, deps Deps, logger *zerolog.Logger) *Server {
	if cfg.RateRPS <= 0 {
		cfg.RateRPS = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	s := &Server{
		config:  cfg,
		deps:    deps,
		limiter: newRateLimiter(cfg.RateRPS, cfg.RateBurst),
		logger:  logger.With().Str("component", "api").Logger(),
	}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	s.mountHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.limiter.middleware)

		r.Route("/schedules", func(r chi.Router) {
			r.With(requireRole(RoleScheduler, RoleAdmin)).Post("/", s.handleCreateSchedule)
			r.Get("/{id}/availableSlots", s.handleAvailableSlots)
			r.Get("/{id}", s.handleGetSchedule)
			r.With(requireRole(RoleScheduler, RoleAdmin)).Patch("/{id}/active", s.handleSetScheduleActive)
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", s.handleCreateAppointment)
			r.Get("/{id}", s.handleGetAppointment)
			r.Post("/{id}/cancel", s.handleCancelAppointment)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(RoleReceptionist, RoleAdmin))
				r.Post("/{id}/cancel/approve", s.handleApproveCancel)
				r.Post("/{id}/cancel/deny", s.handleDenyCancel)
				r.Post("/{id}/confirm", s.handleConfirmAppointment)
				r.Post("/{id}/reject", s.handleRejectAppointment)
			})
			r.With(requireRole(RoleReceptionist, RoleDoctor, RoleAdmin)).Post("/{id}/complete", s.handleCompleteAppointment)
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Post("/checkIn", s.handleCheckIn)
			r.Put("/checkOut", s.handleCheckOut)
			r.Get("/{scheduleId}", s.handleGetAttendance)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(RoleScheduler, RoleAdmin))
				r.Post("/onLeave", s.handleMarkOnLeave)
				r.Delete("/onLeave/{scheduleId}", s.handleResetLeave)
				r.Get("/report", s.handleAttendanceReport)
			})
		})

		r.With(requireRole(RoleScheduler, RoleAdmin)).Post("/admin/sweep", s.handleSweep)
	})

	return r
}

// HealthRoutes serves only /healthz and /readyz, for the health check port.
func (s *Server) HealthRoutes() http.Handler {
	r := chi.NewRouter()
	s.mountHealth(r)
	return r
}

func (s *Server) mountHealth(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Addr).Msg("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	for name, ping := range s.deps.Ready {
		if err := ping(ctx); err != nil {
			http.Error(w, name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
