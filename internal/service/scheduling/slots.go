package scheduling

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"barberbook/backend/internal/domain"
	"barberbook/backend/internal/store"
)

// GenerateSlots returns every start time on date at which the service can
// be booked with staffID right now, in ascending order. The date is a
// calendar date in the engine's location.
func (e *Engine) GenerateSlots(ctx context.Context, staffID, serviceID int64, date domain.Date) (slots []time.Time, err error) {
	ctx, span := e.startSpan(ctx, "GenerateSlots", trace.WithAttributes(
		attribute.Int64("staff_id", staffID),
		attribute.Int64("service_id", serviceID),
		attribute.String("date", date.String()),
	))
	defer func() { e.finish(span, "generate_slots", err) }()

	if staffID <= 0 {
		return nil, validationError("staff_id is required")
	}
	if serviceID <= 0 {
		return nil, validationError("service_id is required")
	}

	windows, err := availableWindows(ctx, e.store, staffID, date.Weekday())
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		if e.metrics != nil {
			e.metrics.ObserveSlots(0)
		}
		return []time.Time{}, nil
	}

	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, notFoundOr(err, "service not found")
	}

	day := date.Bounds(e.loc)
	busy, err := bookedIntervals(ctx, e.store, store.AppointmentQuery{
		StaffID: staffID,
		From:    day.Start,
		To:      day.End,
	})
	if err != nil {
		return nil, err
	}

	now := e.now()
	slots = []time.Time{}
	for _, w := range windows {
		blocked := append(append([]domain.Interval(nil), busy...), w.BreaksOn(date, e.loc)...)
		slots = append(slots, availableSlots(w.On(date, e.loc), svc.Duration(), e.step, blocked, now)...)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	slots = dedupeSorted(slots)

	if e.metrics != nil {
		e.metrics.ObserveSlots(len(slots))
	}
	span.SetAttributes(attribute.Int("slot_count", len(slots)))
	return slots, nil
}

// availableSlots walks window on a fixed step grid anchored at the window
// start and keeps every candidate [t, t+duration) that fits in the window,
// is not before now, and overlaps nothing in blocked.
func availableSlots(window domain.Interval, duration, step time.Duration, blocked []domain.Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !window.End.After(window.Start) {
		return nil
	}

	var slots []time.Time
	for t := window.Start; !t.Add(duration).After(window.End); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(domain.Interval{Start: t, End: t.Add(duration)}, blocked) {
			slots = append(slots, t)
		}
	}
	return slots
}

func overlapsAny(candidate domain.Interval, blocked []domain.Interval) bool {
	for _, b := range blocked {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

func dedupeSorted(ts []time.Time) []time.Time {
	if len(ts) < 2 {
		return ts
	}
	out := ts[:1]
	for _, t := range ts[1:] {
		if !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}

func availableWindows(ctx context.Context, r store.ScheduleReader, staffID int64, day time.Weekday) ([]domain.WorkingWindow, error) {
	windows, err := r.ListWorkingWindows(ctx, staffID, day)
	if err != nil {
		return nil, err
	}
	out := make([]domain.WorkingWindow, 0, len(windows))
	for _, w := range windows {
		if w.IsAvailable && w.StartTime < w.EndTime {
			out = append(out, w)
		}
	}
	return out, nil
}
