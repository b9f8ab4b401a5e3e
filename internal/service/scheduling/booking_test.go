package scheduling

import (
	"context"
	"strings"
	"testing"
	"time"

	"barberbook/backend/internal/domain"
	"barberbook/backend/internal/events"
)

func TestBook_CustomerCreatesPending(t *testing.T) {
	f := newFixture(t)
	got, err := f.engine.Book(context.Background(), BookInput{
		StaffID:    f.staff.ID,
		ServiceID:  f.svc.ID,
		CustomerID: otherCustomerID,
		StartTime:  at(monday, "10:00"),
		Actor:      customer(customerID),
	})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if got.ID == 0 || got.Status != domain.StatusPending {
		t.Fatalf("appointment = %+v", got)
	}
	if got.CustomerID != customerID {
		t.Fatalf("customer = %d, want the acting customer %d", got.CustomerID, customerID)
	}
	if !got.EndTime.Equal(at(monday, "10:30")) {
		t.Fatalf("end = %v, want 10:30", got.EndTime)
	}
	if types := f.pub.types(); len(types) != 1 || types[0] != events.TypeAppointmentBooked {
		t.Fatalf("events = %v", types)
	}

	slots, err := f.engine.GenerateSlots(context.Background(), f.staff.ID, f.svc.ID, monday)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	if contains(formatSlots(slots), "10:00") {
		t.Fatalf("booked slot is still offered")
	}
}

func TestBook_Rejections(t *testing.T) {
	tests := []struct {
		name string
		in   func(f *fixture) BookInput
		want Kind
	}{
		{
			name: "overlap",
			in: func(f *fixture) BookInput {
				f.book(t, at(monday, "10:00"), domain.StatusConfirmed, otherCustomerID)
				return BookInput{StaffID: f.staff.ID, ServiceID: f.svc.ID, StartTime: at(monday, "10:15"), Actor: customer(customerID)}
			},
			want: KindSlotUnavailable,
		},
		{
			name: "outside hours",
			in: func(f *fixture) BookInput {
				return BookInput{StaffID: f.staff.ID, ServiceID: f.svc.ID, StartTime: at(wednes, "10:00"), Actor: customer(customerID)}
			},
			want: KindOutsideHours,
		},
		{
			name: "past",
			in: func(f *fixture) BookInput {
				return BookInput{StaffID: f.staff.ID, ServiceID: f.svc.ID, StartTime: testNow.Add(-time.Hour), Actor: customer(customerID)}
			},
			want: KindInvalidTime,
		},
		{
			name: "unknown service",
			in: func(f *fixture) BookInput {
				return BookInput{StaffID: f.staff.ID, ServiceID: 9999, StartTime: at(monday, "10:00"), Actor: customer(customerID)}
			},
			want: KindNotFound,
		},
		{
			name: "unknown staff",
			in: func(f *fixture) BookInput {
				return BookInput{StaffID: 9999, ServiceID: f.svc.ID, StartTime: at(monday, "10:00"), Actor: customer(customerID)}
			},
			want: KindNotFound,
		},
		{
			name: "staff booking another calendar",
			in: func(f *fixture) BookInput {
				return BookInput{StaffID: f.staff.ID, ServiceID: f.svc.ID, CustomerID: customerID, StartTime: at(monday, "10:00"), Actor: staffActor(otherStaffUser)}
			},
			want: KindUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.engine.Book(context.Background(), tt.in(f))
			wantKind(t, err, tt.want)
			if len(f.pub.events) != 0 {
				t.Fatalf("rejected booking published %v", f.pub.types())
			}
		})
	}
}

func TestBook_StaffMustNameCustomer(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Book(context.Background(), BookInput{
		StaffID:   f.staff.ID,
		ServiceID: f.svc.ID,
		StartTime: at(monday, "10:00"),
		Actor:     staffActor(staffUserID),
	})
	wantValidation(t, err)

	got, err := f.engine.Book(context.Background(), BookInput{
		StaffID:    f.staff.ID,
		ServiceID:  f.svc.ID,
		CustomerID: customerID,
		StartTime:  at(monday, "10:00"),
		Actor:      staffActor(staffUserID),
	})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	if got.CustomerID != customerID {
		t.Fatalf("customer = %d, want %d", got.CustomerID, customerID)
	}
}

func TestCancel_FreesSlotAndIsRepeatable(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(monday, "14:00"), domain.StatusConfirmed, customerID)

	got, err := f.engine.Cancel(context.Background(), CancelInput{AppointmentID: appt.ID, Actor: customer(customerID)})
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", got.Status)
	}

	again, err := f.engine.Cancel(context.Background(), CancelInput{AppointmentID: appt.ID, Actor: customer(customerID)})
	if err != nil {
		t.Fatalf("second Cancel error: %v", err)
	}
	if again.Status != domain.StatusCancelled {
		t.Fatalf("status = %s", again.Status)
	}
	if types := f.pub.types(); len(types) != 1 || types[0] != events.TypeAppointmentCancelled {
		t.Fatalf("events = %v, want one cancellation", types)
	}

	slots, err := f.engine.GenerateSlots(context.Background(), f.staff.ID, f.svc.ID, monday)
	if err != nil {
		t.Fatalf("GenerateSlots error: %v", err)
	}
	if !contains(formatSlots(slots), "14:00") {
		t.Fatalf("cancelled slot was not released")
	}
}

func TestCancel_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		status domain.AppointmentStatus
		actor  domain.Actor
		want   Kind
	}{
		{name: "within cutoff", now: at(monday, "09:00"), status: domain.StatusConfirmed, actor: customer(customerID), want: KindTooLate},
		{name: "other customer", now: testNow, status: domain.StatusConfirmed, actor: customer(otherCustomerID), want: KindUnauthorized},
		{name: "other customer on cancelled", now: testNow, status: domain.StatusCancelled, actor: customer(otherCustomerID), want: KindUnauthorized},
		{name: "other staff", now: testNow, status: domain.StatusPending, actor: staffActor(otherStaffUser), want: KindUnauthorized},
		{name: "completed", now: testNow, status: domain.StatusCompleted, actor: admin(), want: KindInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := tt.now
			f := newFixture(t, WithClock(func() time.Time { return now }))
			appt := f.book(t, at(monday, "14:00"), tt.status, customerID)
			_, err := f.engine.Cancel(context.Background(), CancelInput{AppointmentID: appt.ID, Actor: tt.actor})
			wantKind(t, err, tt.want)
		})
	}
}

func TestCancel_StaffInsideCutoff(t *testing.T) {
	now := at(monday, "13:30")
	f := newFixture(t, WithClock(func() time.Time { return now }))
	appt := f.book(t, at(monday, "14:00"), domain.StatusConfirmed, customerID)
	if _, err := f.engine.Cancel(context.Background(), CancelInput{AppointmentID: appt.ID, Actor: staffActor(staffUserID)}); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
}

func TestBook_IdempotencyKeyReplaysOriginal(t *testing.T) {
	f := newFixture(t)
	in := BookInput{
		StaffID:        f.staff.ID,
		ServiceID:      f.svc.ID,
		StartTime:      at(monday, "10:00"),
		Actor:          customer(customerID),
		IdempotencyKey: " req-1 ",
	}
	first, err := f.engine.Book(context.Background(), in)
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}

	// The slot is now taken by first itself; a retry must not see that as a conflict.
	in.IdempotencyKey = "req-1"
	again, err := f.engine.Book(context.Background(), in)
	if err != nil {
		t.Fatalf("replayed Book error: %v", err)
	}
	if again.ID != first.ID || !again.StartTime.Equal(first.StartTime) {
		t.Fatalf("replay = %+v, want appointment %d", again, first.ID)
	}
	if types := f.pub.types(); len(types) != 1 {
		t.Fatalf("events = %v, want a single booking event", types)
	}

	// Another customer may use the same key.
	other, err := f.engine.Book(context.Background(), BookInput{
		StaffID:        f.staff.ID,
		ServiceID:      f.svc.ID,
		StartTime:      at(monday, "11:00"),
		Actor:          customer(otherCustomerID),
		IdempotencyKey: "req-1",
	})
	if err != nil {
		t.Fatalf("other customer Book error: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("key leaked across customers")
	}
}

func TestBook_IdempotencyKeyReplayIgnoresLaterRules(t *testing.T) {
	now := testNow
	f := newFixture(t, WithClock(func() time.Time { return now }))
	in := BookInput{
		StaffID:        f.staff.ID,
		ServiceID:      f.svc.ID,
		StartTime:      at(monday, "10:00"),
		Actor:          customer(customerID),
		IdempotencyKey: "req-1",
	}
	first, err := f.engine.Book(context.Background(), in)
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}

	now = at(monday, "11:00")
	again, err := f.engine.Book(context.Background(), in)
	if err != nil {
		t.Fatalf("replay after start time error: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("replay id = %d, want %d", again.ID, first.ID)
	}
}

func TestBook_IdempotencyKeyWithDifferentPayload(t *testing.T) {
	tests := []struct {
		name   string
		change func(f *fixture, in *BookInput)
	}{
		{name: "start time", change: func(f *fixture, in *BookInput) { in.StartTime = at(monday, "11:00") }},
		{name: "staff", change: func(f *fixture, in *BookInput) { in.StaffID = f.otherStaff.ID }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.SetWeeklySchedule(f.otherStaff.ID, []domain.WorkingWindow{window(time.Monday, "09:00", "17:00", true)})
			in := BookInput{
				StaffID:        f.staff.ID,
				ServiceID:      f.svc.ID,
				StartTime:      at(monday, "10:00"),
				Actor:          customer(customerID),
				IdempotencyKey: "req-1",
			}
			if _, err := f.engine.Book(context.Background(), in); err != nil {
				t.Fatalf("Book error: %v", err)
			}

			tt.change(f, &in)
			_, err := f.engine.Book(context.Background(), in)
			wantKind(t, err, KindIdempotencyConflict)
			if f.rec.count("book/idempotency_conflict") != 1 {
				t.Fatalf("decisions = %v", f.rec.decisions)
			}
		})
	}
}

func TestBook_IdempotencyKeyTooLong(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Book(context.Background(), BookInput{
		StaffID:        f.staff.ID,
		ServiceID:      f.svc.ID,
		StartTime:      at(monday, "10:00"),
		Actor:          customer(customerID),
		IdempotencyKey: strings.Repeat("k", maxIdempotencyKeyLen+1),
	})
	wantValidation(t, err)
}

func TestCancel_AlreadyCancelledInsideCutoff(t *testing.T) {
	now := at(monday, "13:30")
	f := newFixture(t, WithClock(func() time.Time { return now }))
	appt := f.book(t, at(monday, "14:00"), domain.StatusCancelled, customerID)

	got, err := f.engine.Cancel(context.Background(), CancelInput{AppointmentID: appt.ID, Actor: customer(customerID)})
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	if len(f.pub.types()) != 0 {
		t.Fatalf("no-op cancel published %v", f.pub.types())
	}

	_, err = f.engine.Cancel(context.Background(), CancelInput{AppointmentID: appt.ID, Actor: customer(otherCustomerID)})
	wantKind(t, err, KindUnauthorized)
}
