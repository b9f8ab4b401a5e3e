package scheduling

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"barberbook/backend/internal/domain"
	"barberbook/backend/internal/store"
)

// WeeklySchedule returns the staff member's windows ordered by weekday.
func (e *Engine) WeeklySchedule(ctx context.Context, staffID int64) ([]domain.WorkingWindow, error) {
	if staffID <= 0 {
		return nil, validationError("staff_id is required")
	}
	if _, err := e.store.GetStaffProfile(ctx, staffID); err != nil {
		return nil, notFoundOr(err, "staff member not found")
	}
	windows, err := e.store.ListWeeklySchedule(ctx, staffID)
	if err != nil {
		return nil, err
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].DayOfWeek < windows[j].DayOfWeek })
	return windows, nil
}

// ReplaceWeeklySchedule swaps the staff member's whole weekly schedule.
// Only that staff member or an admin may do so. Existing appointments are
// left untouched; they are re-checked only when they are next moved.
func (e *Engine) ReplaceWeeklySchedule(ctx context.Context, staffID int64, actor domain.Actor, windows []domain.WorkingWindow) (out []domain.WorkingWindow, err error) {
	ctx, span := e.startSpan(ctx, "ReplaceWeeklySchedule", trace.WithAttributes(
		attribute.Int64("staff_id", staffID),
		attribute.Int("window_count", len(windows)),
	))
	defer func() { e.finish(span, "replace_schedule", err) }()

	if staffID <= 0 {
		return nil, validationError("staff_id is required")
	}
	if err := domain.ValidateWeeklySchedule(windows); err != nil {
		return nil, validationError(err.Error())
	}

	normalized := make([]domain.WorkingWindow, 0, len(windows))
	for _, w := range windows {
		w.ID = 0
		w.StaffID = staffID
		breaks := make([]domain.Break, 0, len(w.Breaks))
		for _, b := range w.Breaks {
			breaks = append(breaks, domain.Break{StartTime: b.StartTime, EndTime: b.EndTime})
		}
		w.Breaks = breaks
		normalized = append(normalized, w)
	}

	err = e.store.InStaffTransaction(ctx, staffID, func(ctx context.Context, tx store.ScheduleTx) error {
		if _, err := tx.GetStaffProfile(ctx, staffID); err != nil {
			return notFoundOr(err, "staff member not found")
		}
		switch actor.Role {
		case domain.RoleAdmin:
		case domain.RoleStaff:
			profile, err := tx.GetStaffProfileByUser(ctx, actor.ID)
			if err != nil {
				return notFoundOr(err, "staff profile not found")
			}
			if profile.ID != staffID {
				return reject(KindUnauthorized, "staff can only edit their own schedule")
			}
		default:
			return reject(KindUnauthorized, "only staff or admins can edit schedules")
		}

		saved, err := tx.ReplaceWeeklySchedule(ctx, staffID, normalized)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Service looks up a service for clients that need its duration.
func (e *Engine) Service(ctx context.Context, serviceID int64) (domain.Service, error) {
	if serviceID <= 0 {
		return domain.Service{}, validationError("service_id is required")
	}
	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return domain.Service{}, notFoundOr(err, "service not found")
	}
	return svc, nil
}
