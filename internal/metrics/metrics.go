package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clinic"

var (
	once sync.Once

	schedulesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedules_created_total",
			Help:      "Count of schedule create attempts by result.",
		},
		[]string{"result"},
	)

	appointmentsBooked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_booked_total",
			Help:      "Count of booking attempts by result.",
		},
		[]string{"result"},
	)

	appointmentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Count of appointment status changes by target status.",
		},
		[]string{"status"},
	)

	slotReleaseDiscrepancies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_release_discrepancies_total",
			Help:      "Count of cancellations whose slot could not be released.",
		},
	)

	attendanceRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_recorded_total",
			Help:      "Count of attendance writes by resulting status.",
		},
		[]string{"status"},
	)

	sweeperRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_records_total",
			Help:      "Count of attendance records touched by the absent sweeper.",
		},
		[]string{"action"},
	)

	slotCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_cache_requests_total",
			Help:      "Availability cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			schedulesCreated,
			appointmentsBooked,
			appointmentTransitions,
			slotReleaseDiscrepancies,
			attendanceRecorded,
			sweeperRuns,
			slotCache,
			httpRequests,
			httpDuration,
		)
	})
}

func IncScheduleCreated(result string) {
	schedulesCreated.WithLabelValues(result).Inc()
}

func IncAppointmentBooked(result string) {
	appointmentsBooked.WithLabelValues(result).Inc()
}

func IncAppointmentTransition(status string) {
	appointmentTransitions.WithLabelValues(status).Inc()
}

func IncSlotReleaseDiscrepancy() {
	slotReleaseDiscrepancies.Inc()
}

func IncAttendanceRecorded(status string) {
	attendanceRecorded.WithLabelValues(status).Inc()
}

func AddSweeperRecords(action string, n int) {
	sweeperRuns.WithLabelValues(action).Add(float64(n))
}

func IncSlotCache(outcome string) {
	slotCache.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
