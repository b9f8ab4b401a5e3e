package domain

import (
	"testing"
	"time"
)

func TestParseWallClock(t *testing.T) {
	tests := []struct {
		in      string
		want    WallClock
		wantErr bool
	}{
		{in: "09:00", want: 9 * 60},
		{in: "16:30", want: 16*60 + 30},
		{in: "00:00", want: 0},
		{in: "23:59", want: 23*60 + 59},
		{in: "17:00:00", want: 17 * 60},
		{in: "17:00:30", wantErr: true},
		{in: "24:00", want: EndOfDay},
		{in: "24:00:00", want: EndOfDay},
		{in: "24:01", wantErr: true},
		{in: "25:00", wantErr: true},
		{in: "9:00", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWallClock(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseWallClock(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWallClock(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseWallClock(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestWallClockScanAndValue(t *testing.T) {
	var wc WallClock
	if err := wc.Scan([]byte("10:15")); err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	v, err := wc.Value()
	if err != nil {
		t.Fatalf("Value error: %v", err)
	}
	if v != "10:15" {
		t.Fatalf("Value = %v, want %q", v, "10:15")
	}
	if err := wc.Scan(nil); err == nil {
		t.Fatalf("expected error scanning NULL")
	}
}

func TestEndOfDay(t *testing.T) {
	if got := EndOfDay.String(); got != "24:00" {
		t.Fatalf("EndOfDay.String() = %q", got)
	}
	if !EndOfDay.Valid() || (EndOfDay + 1).Valid() {
		t.Fatalf("validity bound is not 24:00")
	}
	v, err := EndOfDay.Value()
	if err != nil || v != "24:00" {
		t.Fatalf("Value = %v, %v", v, err)
	}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// The spring-forward day is 23h long; 24:00 must still be the next midnight.
	d := Date{Year: 2026, Month: time.March, Day: 8}
	if got, want := d.At(EndOfDay, loc), d.Bounds(loc).End; !got.Equal(want) {
		t.Fatalf("At(24:00) = %v, want %v", got, want)
	}
}

func TestParseDate_IsCivilNotUTCMidnight(t *testing.T) {
	d, err := ParseDate("2026-03-02")
	if err != nil {
		t.Fatalf("ParseDate error: %v", err)
	}
	if d.Weekday() != time.Monday {
		t.Fatalf("weekday = %s, want Monday", d.Weekday())
	}

	// A zone west of UTC must not shift the date to Sunday.
	loc := time.FixedZone("UTC-8", -8*3600)
	start := d.Bounds(loc).Start
	if start.Weekday() != time.Monday || start.Day() != 2 {
		t.Fatalf("local midnight = %v, want Monday 2nd", start)
	}
	if got := DateOf(start, loc); got != d {
		t.Fatalf("DateOf = %v, want %v", got, d)
	}
}

func TestDateBoundsAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	d := Date{Year: 2026, Month: time.March, Day: 8}
	if got := d.Bounds(loc).Duration(); got != 23*time.Hour {
		t.Fatalf("spring-forward day length = %s, want 23h", got)
	}
}

func TestIntervalOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	booked := Interval{Start: base, End: base.Add(30 * time.Minute)}

	tests := []struct {
		name  string
		start time.Duration
		want  bool
	}{
		{"ends at booked start", -30 * time.Minute, false},
		{"ends inside", -15 * time.Minute, true},
		{"same start", 0, true},
		{"starts inside", 15 * time.Minute, true},
		{"starts at booked end", 30 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Interval{Start: base.Add(tt.start), End: base.Add(tt.start + 30*time.Minute)}
			if got := c.Overlaps(booked); got != tt.want {
				t.Fatalf("Overlaps = %v, want %v", got, tt.want)
			}
			if got := booked.Overlaps(c); got != tt.want {
				t.Fatalf("Overlaps (reversed) = %v, want %v", got, tt.want)
			}
		})
	}
}
