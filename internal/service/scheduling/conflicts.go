package scheduling

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"barberbook/backend/internal/domain"
	"barberbook/backend/internal/store"
)

// HasConflict reports whether candidate overlaps any non-cancelled
// appointment of staffID other than excludeID (0 excludes nothing).
func (e *Engine) HasConflict(ctx context.Context, staffID int64, candidate domain.Interval, excludeID int64) (conflict bool, err error) {
	ctx, span := e.startSpan(ctx, "HasConflict", trace.WithAttributes(
		attribute.Int64("staff_id", staffID),
		attribute.Int64("exclude_id", excludeID),
	))
	defer func() { e.finish(span, "has_conflict", err) }()

	if staffID <= 0 {
		return false, validationError("staff_id is required")
	}
	if !candidate.End.After(candidate.Start) {
		return false, validationError("interval end must be after start")
	}
	return e.hasConflict(ctx, e.store, staffID, candidate, excludeID)
}

// hasConflict loads the candidate's local calendar day (stretched to cover
// the candidate) and applies Interval.Overlaps against each appointment's
// occupied interval.
func (e *Engine) hasConflict(ctx context.Context, r store.ScheduleReader, staffID int64, candidate domain.Interval, excludeID int64) (bool, error) {
	day := domain.DateOf(candidate.Start, e.loc).Bounds(e.loc)
	if candidate.End.After(day.End) {
		day.End = candidate.End
	}

	busy, err := bookedIntervals(ctx, r, store.AppointmentQuery{
		StaffID:   staffID,
		From:      day.Start,
		To:        day.End,
		ExcludeID: excludeID,
	})
	if err != nil {
		return false, err
	}
	return overlapsAny(candidate, busy), nil
}

// bookedIntervals returns the occupied intervals of the blocking
// appointments matched by q.
func bookedIntervals(ctx context.Context, r store.ScheduleReader, q store.AppointmentQuery) ([]domain.Interval, error) {
	q.IncludeCancelled = false
	appts, err := r.ListAppointments(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Interval, 0, len(appts))
	for _, a := range appts {
		if !a.Status.Blocks() || (q.ExcludeID != 0 && a.ID == q.ExcludeID) {
			continue
		}
		out = append(out, a.Occupied())
	}
	return out, nil
}
