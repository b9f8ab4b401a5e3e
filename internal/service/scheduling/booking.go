package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"barberbook/backend/internal/domain"
	"barberbook/backend/internal/events"
	"barberbook/backend/internal/store"
)

const maxIdempotencyKeyLen = 256

type BookInput struct {
	StaffID    int64
	ServiceID  int64
	CustomerID int64
	StartTime  time.Time
	Actor      domain.Actor
	// IdempotencyKey, when set, makes retries of the same booking return the
	// appointment the first attempt created.
	IdempotencyKey string
}

// Book creates a PENDING appointment. It runs the same time, working-hours
// and conflict rules as Reschedule inside the staff member's transaction.
// A request repeating a customer's idempotency key returns the stored
// appointment without re-checking the rules; reusing the key for a
// different staff member, service or start time is KindIdempotencyConflict.
func (e *Engine) Book(ctx context.Context, in BookInput) (out domain.Appointment, err error) {
	ctx, span := e.startSpan(ctx, "Book", trace.WithAttributes(
		attribute.Int64("staff_id", in.StaffID),
		attribute.Int64("service_id", in.ServiceID),
		attribute.String("actor_role", string(in.Actor.Role)),
	))
	defer func() { e.finish(span, "book", err) }()

	if in.StaffID <= 0 {
		return domain.Appointment{}, validationError("staff_id is required")
	}
	if in.ServiceID <= 0 {
		return domain.Appointment{}, validationError("service_id is required")
	}
	if in.StartTime.IsZero() {
		return domain.Appointment{}, validationError("start_time is required")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return domain.Appointment{}, validationError("idempotency key is too long")
	}

	customerID := in.CustomerID
	switch in.Actor.Role {
	case domain.RoleCustomer:
		customerID = in.Actor.ID
	case domain.RoleStaff, domain.RoleAdmin:
		if customerID <= 0 {
			return domain.Appointment{}, validationError("customer_id is required")
		}
	default:
		return domain.Appointment{}, reject(KindUnauthorized, "unknown role")
	}

	svc, err := e.store.GetService(ctx, in.ServiceID)
	if err != nil {
		return domain.Appointment{}, notFoundOr(err, "service not found")
	}

	now := e.now()
	replayed := false
	err = e.store.InStaffTransaction(ctx, in.StaffID, func(ctx context.Context, tx store.ScheduleTx) error {
		if _, err := tx.GetStaffProfile(ctx, in.StaffID); err != nil {
			return notFoundOr(err, "staff member not found")
		}
		if in.Actor.Role == domain.RoleStaff {
			profile, err := tx.GetStaffProfileByUser(ctx, in.Actor.ID)
			if err != nil {
				return notFoundOr(err, "staff profile not found")
			}
			if profile.ID != in.StaffID {
				return reject(KindUnauthorized, "staff can only book their own calendar")
			}
		}
		if key != "" {
			prior, err := tx.GetAppointmentByIdempotencyKey(ctx, customerID, key)
			switch {
			case err == nil:
				if prior.StaffID != in.StaffID || prior.ServiceID != svc.ID || !prior.StartTime.Equal(in.StartTime) {
					return reject(KindIdempotencyConflict, "idempotency key was already used for a different booking")
				}
				out = prior
				replayed = true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}
		if in.StartTime.Before(now) {
			return reject(KindInvalidTime, "start time is in the past")
		}

		candidate := domain.Interval{Start: in.StartTime, End: in.StartTime.Add(svc.Duration())}
		if err := e.checkWorkingHours(ctx, tx, in.StaffID, candidate); err != nil {
			return err
		}
		conflict, err := e.hasConflict(ctx, tx, in.StaffID, candidate, 0)
		if err != nil {
			return err
		}
		if conflict {
			return reject(KindSlotUnavailable, "requested time overlaps another appointment")
		}

		created, err := tx.CreateAppointment(ctx, domain.Appointment{
			StaffID:        in.StaffID,
			ServiceID:      svc.ID,
			CustomerID:     customerID,
			StartTime:      candidate.Start,
			EndTime:        candidate.End,
			Status:         domain.StatusPending,
			IdempotencyKey: key,
		})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return reject(KindSlotUnavailable, "requested time was just taken")
			}
			if errors.Is(err, store.ErrIdempotencyConflict) {
				return reject(KindIdempotencyConflict, "idempotency key was already used for a different booking")
			}
			return err
		}
		created.Service = &svc
		out = created
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	if replayed {
		span.SetAttributes(attribute.Bool("idempotent_replay", true))
		return out, nil
	}

	e.publish(ctx, events.NewAppointmentEvent(events.TypeAppointmentBooked, out, nil, now))
	return out, nil
}

type CancelInput struct {
	AppointmentID int64
	Actor         domain.Actor
}

// Cancel marks an appointment CANCELLED, which frees its interval.
// Cancelling an already cancelled appointment succeeds without a write.
func (e *Engine) Cancel(ctx context.Context, in CancelInput) (out domain.Appointment, err error) {
	ctx, span := e.startSpan(ctx, "Cancel", trace.WithAttributes(
		attribute.Int64("appointment_id", in.AppointmentID),
		attribute.String("actor_role", string(in.Actor.Role)),
	))
	defer func() { e.finish(span, "cancel", err) }()

	if in.AppointmentID <= 0 {
		return domain.Appointment{}, validationError("appointment_id is required")
	}

	appt, err := e.store.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		return domain.Appointment{}, notFoundOr(err, "appointment not found")
	}

	now := e.now()
	changed := false
	err = e.store.InStaffTransaction(ctx, appt.StaffID, func(ctx context.Context, tx store.ScheduleTx) error {
		current, err := tx.GetAppointment(ctx, in.AppointmentID)
		if err != nil {
			return notFoundOr(err, "appointment not found")
		}
		if current.Status == domain.StatusCancelled {
			// Ownership still applies to the no-op; the cutoff does not.
			if err := e.authorize(ctx, tx, current, in.Actor, now, false); err != nil {
				return err
			}
			out = current
			return nil
		}
		if err := e.authorize(ctx, tx, current, in.Actor, now, true); err != nil {
			return err
		}
		if current.Status == domain.StatusCompleted {
			return reject(KindInvalidState, "completed appointments cannot be cancelled")
		}

		updated, err := tx.UpdateAppointmentStatus(ctx, current.ID, domain.StatusCancelled)
		if err != nil {
			return notFoundOr(err, "appointment not found")
		}
		out = updated
		changed = true
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	if changed {
		e.publish(ctx, events.NewAppointmentEvent(events.TypeAppointmentCancelled, out, nil, now))
	}
	return out, nil
}
