package scheduling

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"barberbook/backend/internal/domain"
	"barberbook/backend/internal/events"
	"barberbook/backend/internal/store"
)

type RescheduleInput struct {
	AppointmentID int64
	NewStartTime  time.Time
	Actor         domain.Actor
}

// Reschedule validates moving an appointment to NewStartTime and, when every
// rule passes, persists the new start time. Nothing is written on rejection.
func (e *Engine) Reschedule(ctx context.Context, in RescheduleInput) (out domain.Appointment, err error) {
	ctx, span := e.startSpan(ctx, "Reschedule", trace.WithAttributes(
		attribute.Int64("appointment_id", in.AppointmentID),
		attribute.String("actor_role", string(in.Actor.Role)),
	))
	defer func() { e.finish(span, "reschedule", err) }()

	if in.AppointmentID <= 0 {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if in.NewStartTime.IsZero() {
		return domain.Appointment{}, validationError("new_start_time is required")
	}

	appt, err := e.store.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		return domain.Appointment{}, notFoundOr(err, "appointment not found")
	}

	now := e.now()
	previousStart := appt.StartTime

	err = e.store.InStaffTransaction(ctx, appt.StaffID, func(ctx context.Context, tx store.ScheduleTx) error {
		// Re-read under the staff lock; the first read only located the staff.
		current, err := tx.GetAppointment(ctx, in.AppointmentID)
		if err != nil {
			return notFoundOr(err, "appointment not found")
		}
		previousStart = current.StartTime

		if err := e.authorize(ctx, tx, current, in.Actor, now, true); err != nil {
			return err
		}
		if !current.Status.Blocks() || current.Status == domain.StatusCompleted {
			return reject(KindInvalidState, "only pending or confirmed appointments can be rescheduled")
		}
		if in.NewStartTime.Before(now) {
			return reject(KindInvalidTime, "new start time is in the past")
		}

		svc, err := serviceFor(ctx, tx, current)
		if err != nil {
			return err
		}
		candidate := domain.Interval{Start: in.NewStartTime, End: in.NewStartTime.Add(svc.Duration())}

		if err := e.checkWorkingHours(ctx, tx, current.StaffID, candidate); err != nil {
			return err
		}

		conflict, err := e.hasConflict(ctx, tx, current.StaffID, candidate, current.ID)
		if err != nil {
			return err
		}
		if conflict {
			return reject(KindSlotUnavailable, "requested time overlaps another appointment")
		}

		updated, err := tx.UpdateAppointmentStartTime(ctx, current.ID, candidate.Start, candidate.End)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return reject(KindSlotUnavailable, "requested time was just taken")
			}
			return notFoundOr(err, "appointment not found")
		}
		out = updated
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	e.publish(ctx, events.NewAppointmentEvent(events.TypeAppointmentRescheduled, out, &previousStart, now))
	return out, nil
}

// authorize applies the role rules shared by reschedule and cancel.
// Customers must own the appointment and, when enforceCutoff is set, act
// before the cutoff. Staff must be the appointment's staff member. Admins
// are unrestricted.
func (e *Engine) authorize(ctx context.Context, r store.ScheduleReader, appt domain.Appointment, actor domain.Actor, now time.Time, enforceCutoff bool) error {
	switch actor.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleCustomer:
		if appt.CustomerID != actor.ID {
			return reject(KindUnauthorized, "appointment belongs to another customer")
		}
		if enforceCutoff && appt.StartTime.Sub(now) < e.cutoff {
			return reject(KindTooLate, "appointments cannot be changed within "+e.cutoff.String()+" of the start time")
		}
		return nil
	case domain.RoleStaff:
		profile, err := r.GetStaffProfileByUser(ctx, actor.ID)
		if err != nil {
			return notFoundOr(err, "staff profile not found")
		}
		if profile.ID != appt.StaffID {
			return reject(KindUnauthorized, "appointment belongs to another staff member")
		}
		return nil
	default:
		return reject(KindUnauthorized, "unknown role")
	}
}

// checkWorkingHours requires candidate to lie inside an available window of
// its local weekday and outside every break of that window. Comparisons are
// made on instants resolved from the window's wall-clock times on the
// candidate's local date.
func (e *Engine) checkWorkingHours(ctx context.Context, r store.ScheduleReader, staffID int64, candidate domain.Interval) error {
	date := domain.DateOf(candidate.Start, e.loc)
	windows, err := availableWindows(ctx, r, staffID, date.Weekday())
	if err != nil {
		return err
	}
	for _, w := range windows {
		if !w.On(date, e.loc).Contains(candidate) {
			continue
		}
		if overlapsAny(candidate, w.BreaksOn(date, e.loc)) {
			return reject(KindOutsideHours, "requested time overlaps a break")
		}
		return nil
	}
	return reject(KindOutsideHours, "requested time is outside working hours")
}
