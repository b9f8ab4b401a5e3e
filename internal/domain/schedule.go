package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// WorkingWindow is a weekly recurring availability window for one staff
// member. DayOfWeek follows time.Weekday (0 = Sunday).
type WorkingWindow struct {
	bun.BaseModel `bun:"table:working_windows"`

	ID          int64        `bun:"id,pk,autoincrement" json:"id"`
	StaffID     int64        `bun:"staff_id,notnull" json:"staffId"`
	DayOfWeek   time.Weekday `bun:"day_of_week,notnull" json:"dayOfWeek"`
	StartTime   WallClock    `bun:"start_time,notnull,type:text" json:"startTime"`
	EndTime     WallClock    `bun:"end_time,notnull,type:text" json:"endTime"`
	IsAvailable bool         `bun:"is_available,notnull" json:"isAvailable"`
	Breaks      []Break      `bun:"rel:has-many,join:id=window_id" json:"breaks"`
	CreatedAt   time.Time    `bun:"created_at,notnull" json:"-"`
	UpdatedAt   time.Time    `bun:"updated_at,notnull" json:"-"`
}

func (w *WorkingWindow) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if w.CreatedAt.IsZero() {
			w.CreatedAt = now
		}
		if w.UpdatedAt.IsZero() {
			w.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		w.UpdatedAt = now
	}
	return nil
}

// Break is a sub-interval of a window during which the staff member cannot
// be booked.
type Break struct {
	bun.BaseModel `bun:"table:breaks"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	WindowID  int64     `bun:"window_id,notnull" json:"windowId"`
	StartTime WallClock `bun:"start_time,notnull,type:text" json:"startTime"`
	EndTime   WallClock `bun:"end_time,notnull,type:text" json:"endTime"`
}

// On resolves the window to absolute instants on date d in loc.
func (w WorkingWindow) On(d Date, loc *time.Location) Interval {
	return Interval{Start: d.At(w.StartTime, loc), End: d.At(w.EndTime, loc)}
}

// BreaksOn resolves the window's breaks on date d in loc, sorted by start.
func (w WorkingWindow) BreaksOn(d Date, loc *time.Location) []Interval {
	out := make([]Interval, 0, len(w.Breaks))
	for _, b := range w.Breaks {
		out = append(out, Interval{Start: d.At(b.StartTime, loc), End: d.At(b.EndTime, loc)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

var (
	ErrInvalidWeekday     = errors.New("day_of_week must be between 0 and 6")
	ErrDuplicateWeekday   = errors.New("at most one window per day_of_week")
	ErrWindowBounds       = errors.New("window start_time must be before end_time")
	ErrBreakOutsideWindow = errors.New("break must lie within its window")
	ErrBreakBounds        = errors.New("break start_time must be before end_time")
	ErrBreaksOverlap      = errors.New("breaks must not overlap")
)

// ValidateWeeklySchedule checks a full weekly schedule for one staff member.
func ValidateWeeklySchedule(windows []WorkingWindow) error {
	seen := make(map[time.Weekday]struct{}, len(windows))
	for _, w := range windows {
		if w.DayOfWeek < time.Sunday || w.DayOfWeek > time.Saturday {
			return ErrInvalidWeekday
		}
		if _, ok := seen[w.DayOfWeek]; ok {
			return ErrDuplicateWeekday
		}
		seen[w.DayOfWeek] = struct{}{}

		if !w.StartTime.Valid() || !w.EndTime.Valid() || w.StartTime >= w.EndTime {
			return fmt.Errorf("%s: %w", w.DayOfWeek, ErrWindowBounds)
		}

		breaks := append([]Break(nil), w.Breaks...)
		sort.Slice(breaks, func(i, j int) bool { return breaks[i].StartTime < breaks[j].StartTime })
		for i, b := range breaks {
			if !b.StartTime.Valid() || !b.EndTime.Valid() || b.StartTime >= b.EndTime {
				return fmt.Errorf("%s: %w", w.DayOfWeek, ErrBreakBounds)
			}
			if b.StartTime < w.StartTime || b.EndTime > w.EndTime {
				return fmt.Errorf("%s: %w", w.DayOfWeek, ErrBreakOutsideWindow)
			}
			if i > 0 && breaks[i-1].EndTime > b.StartTime {
				return fmt.Errorf("%s: %w", w.DayOfWeek, ErrBreaksOverlap)
			}
		}
	}
	return nil
}
