package store

import (
	"context"
	"time"

	"barberbook/backend/internal/domain"
)

// AppointmentQuery selects one staff member's appointments whose stored
// interval intersects [From, To).
type AppointmentQuery struct {
	StaffID          int64
	From             time.Time
	To               time.Time
	ExcludeID        int64
	IncludeCancelled bool
}

// ScheduleReader is the read side used by slot generation and conflict checks.
// Appointments are returned with Service populated.
type ScheduleReader interface {
	ListWorkingWindows(ctx context.Context, staffID int64, day time.Weekday) ([]domain.WorkingWindow, error)
	ListWeeklySchedule(ctx context.Context, staffID int64) ([]domain.WorkingWindow, error)
	ListAppointments(ctx context.Context, q AppointmentQuery) ([]domain.Appointment, error)
	GetService(ctx context.Context, serviceID int64) (domain.Service, error)
	GetAppointment(ctx context.Context, appointmentID int64) (domain.Appointment, error)
	GetAppointmentByIdempotencyKey(ctx context.Context, customerID int64, key string) (domain.Appointment, error)
	GetStaffProfile(ctx context.Context, staffID int64) (domain.StaffProfile, error)
	GetStaffProfileByUser(ctx context.Context, userID int64) (domain.StaffProfile, error)
}

// ScheduleTx is a unit of work serialized against every other unit of work
// for the same staff member.
type ScheduleTx interface {
	ScheduleReader

	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointmentStartTime(ctx context.Context, appointmentID int64, start, end time.Time) (domain.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, appointmentID int64, status domain.AppointmentStatus) (domain.Appointment, error)
	ReplaceWeeklySchedule(ctx context.Context, staffID int64, windows []domain.WorkingWindow) ([]domain.WorkingWindow, error)
}

// ScheduleStore implementations must make InStaffTransaction exclusive per
// staff id and must reject overlapping non-cancelled writes with ErrConflict
// even when a caller skips the read-side check.
type ScheduleStore interface {
	ScheduleReader

	InStaffTransaction(ctx context.Context, staffID int64, fn func(ctx context.Context, tx ScheduleTx) error) error
	Ping(ctx context.Context) error
}
