package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WallClock is a local time of day, stored as minutes after midnight.
// It carries no date and no location; combine it with a Date and a
// *time.Location to get an instant.
type WallClock int

const minutesPerDay = 24 * 60

// EndOfDay is "24:00": the midnight that closes a day. It is only
// meaningful as the end of a window or break.
const EndOfDay WallClock = minutesPerDay

var errInvalidWallClock = errors.New("invalid wall clock time")

// ParseWallClock parses "HH:MM" (24h), plus "24:00" for EndOfDay.
// "HH:MM:SS" is accepted when the seconds are zero, which is what Postgres
// returns for time columns.
func ParseWallClock(s string) (WallClock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errInvalidWallClock
	}
	if len(parts) == 3 && parts[2] != "00" {
		return 0, errInvalidWallClock
	}
	if len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, errInvalidWallClock
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, errInvalidWallClock
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, errInvalidWallClock
	}
	if h == 24 && m != 0 {
		return 0, errInvalidWallClock
	}
	return WallClock(h*60 + m), nil
}

func MustWallClock(s string) WallClock {
	wc, err := ParseWallClock(s)
	if err != nil {
		panic(fmt.Sprintf("domain: %q: %v", s, err))
	}
	return wc
}

func (w WallClock) Hour() int   { return int(w) / 60 }
func (w WallClock) Minute() int { return int(w) % 60 }

// Valid accepts 00:00 through 24:00. Callers that need a start time also
// require it to be before some end, which rules out EndOfDay.
func (w WallClock) Valid() bool { return w >= 0 && w <= EndOfDay }

func (w WallClock) String() string {
	return fmt.Sprintf("%02d:%02d", w.Hour(), w.Minute())
}

func (w WallClock) MarshalText() ([]byte, error) {
	if !w.Valid() {
		return nil, errInvalidWallClock
	}
	return []byte(w.String()), nil
}

func (w *WallClock) UnmarshalText(b []byte) error {
	v, err := ParseWallClock(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

func (w WallClock) Value() (driver.Value, error) {
	if !w.Valid() {
		return nil, errInvalidWallClock
	}
	return w.String(), nil
}

func (w *WallClock) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return w.UnmarshalText([]byte(v))
	case []byte:
		return w.UnmarshalText(v)
	case nil:
		return errors.New("wall clock: NULL value")
	default:
		return fmt.Errorf("wall clock: unsupported type %T", src)
	}
}

// Date is a calendar date without a location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// ParseDate parses "YYYY-MM-DD". The result is a civil date; it is never
// anchored to UTC midnight.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// DateOf returns the calendar date of instant t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	l := t.In(loc)
	return Date{Year: l.Year(), Month: l.Month(), Day: l.Day()}
}

// Weekday is computed on the civil date, independent of any location.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// At resolves the wall clock time on this date in loc. EndOfDay resolves to
// the next local midnight, the same instant as Bounds(loc).End.
func (d Date) At(w WallClock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, w.Hour(), w.Minute(), 0, 0, loc)
}

// Bounds returns [local midnight, next local midnight) for the date.
// The span is not always 24h across DST transitions.
func (d Date) Bounds(loc *time.Location) Interval {
	start := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	end := time.Date(d.Year, d.Month, d.Day+1, 0, 0, 0, 0, loc)
	return Interval{Start: start, End: end}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Interval is a half-open span of absolute instants [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps is the one overlap predicate used for slots, conflicts and breaks.
// Touching intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}
