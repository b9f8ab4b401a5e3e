package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"barberbook/backend/internal/domain"
	"barberbook/backend/internal/store"
)

func seed(t *testing.T) (*Store, domain.Service, domain.StaffProfile) {
	t.Helper()
	s := New()
	svc := s.AddService(domain.Service{Name: "Cut", DurationMinutes: 30})
	staff := s.AddStaff(domain.StaffProfile{UserID: 900, DisplayName: "Sam"})
	return s, svc, staff
}

func TestCreateAppointment_RejectsOverlap(t *testing.T) {
	s, svc, staff := seed(t)
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.PutAppointment(domain.Appointment{StaffID: staff.ID, ServiceID: svc.ID, CustomerID: 1, StartTime: start, Status: domain.StatusConfirmed})

	err := s.InStaffTransaction(context.Background(), staff.ID, func(ctx context.Context, tx store.ScheduleTx) error {
		_, err := tx.CreateAppointment(ctx, domain.Appointment{
			StaffID:   staff.ID,
			ServiceID: svc.ID,
			StartTime: start.Add(15 * time.Minute),
			EndTime:   start.Add(45 * time.Minute),
			Status:    domain.StatusPending,
		})
		return err
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestCreateAppointment_AdjacentAndCancelledDoNotConflict(t *testing.T) {
	s, svc, staff := seed(t)
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.PutAppointment(domain.Appointment{StaffID: staff.ID, ServiceID: svc.ID, StartTime: start, Status: domain.StatusConfirmed})
	s.PutAppointment(domain.Appointment{StaffID: staff.ID, ServiceID: svc.ID, StartTime: start.Add(30 * time.Minute), Status: domain.StatusCancelled})

	var created domain.Appointment
	err := s.InStaffTransaction(context.Background(), staff.ID, func(ctx context.Context, tx store.ScheduleTx) error {
		var err error
		created, err = tx.CreateAppointment(ctx, domain.Appointment{
			StaffID:   staff.ID,
			ServiceID: svc.ID,
			StartTime: start.Add(30 * time.Minute),
			EndTime:   start.Add(60 * time.Minute),
			Status:    domain.StatusPending,
		})
		return err
	})
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}
	if created.ID == 0 || created.Service == nil || created.Service.ID != svc.ID {
		t.Fatalf("created = %+v, want id and joined service", created)
	}
}

func TestUpdateAppointmentStartTime_ExcludesItself(t *testing.T) {
	s, svc, staff := seed(t)
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	appt := s.PutAppointment(domain.Appointment{StaffID: staff.ID, ServiceID: svc.ID, StartTime: start, Status: domain.StatusConfirmed})

	err := s.InStaffTransaction(context.Background(), staff.ID, func(ctx context.Context, tx store.ScheduleTx) error {
		_, err := tx.UpdateAppointmentStartTime(ctx, appt.ID, start.Add(15*time.Minute), start.Add(45*time.Minute))
		return err
	})
	if err != nil {
		t.Fatalf("UpdateAppointmentStartTime error: %v", err)
	}
	got, err := s.GetAppointment(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("GetAppointment error: %v", err)
	}
	if !got.StartTime.Equal(start.Add(15 * time.Minute)) {
		t.Fatalf("start = %v, want %v", got.StartTime, start.Add(15*time.Minute))
	}
}

func TestUpdateAppointment_NotFound(t *testing.T) {
	s, _, staff := seed(t)
	err := s.InStaffTransaction(context.Background(), staff.ID, func(ctx context.Context, tx store.ScheduleTx) error {
		_, err := tx.UpdateAppointmentStatus(ctx, 12345, domain.StatusCancelled)
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListAppointments_HalfOpenRange(t *testing.T) {
	s, svc, staff := seed(t)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s.PutAppointment(domain.Appointment{StaffID: staff.ID, ServiceID: svc.ID, StartTime: day.Add(-30 * time.Minute), Status: domain.StatusConfirmed})
	inside := s.PutAppointment(domain.Appointment{StaffID: staff.ID, ServiceID: svc.ID, StartTime: day.Add(9 * time.Hour), Status: domain.StatusPending})
	s.PutAppointment(domain.Appointment{StaffID: staff.ID, ServiceID: svc.ID, StartTime: day.Add(24 * time.Hour), Status: domain.StatusConfirmed})
	s.PutAppointment(domain.Appointment{StaffID: staff.ID + 1, ServiceID: svc.ID, StartTime: day.Add(9 * time.Hour), Status: domain.StatusConfirmed})

	got, err := s.ListAppointments(context.Background(), store.AppointmentQuery{
		StaffID: staff.ID,
		From:    day,
		To:      day.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ListAppointments error: %v", err)
	}
	if len(got) != 1 || got[0].ID != inside.ID {
		t.Fatalf("got %+v, want only appointment %d", got, inside.ID)
	}
}

func TestReplaceWeeklySchedule_AssignsIDsAndCopies(t *testing.T) {
	s, _, staff := seed(t)
	in := []domain.WorkingWindow{{
		DayOfWeek:   time.Monday,
		StartTime:   domain.MustWallClock("09:00"),
		EndTime:     domain.MustWallClock("17:00"),
		IsAvailable: true,
		Breaks:      []domain.Break{{StartTime: domain.MustWallClock("12:00"), EndTime: domain.MustWallClock("13:00")}},
	}}

	var saved []domain.WorkingWindow
	err := s.InStaffTransaction(context.Background(), staff.ID, func(ctx context.Context, tx store.ScheduleTx) error {
		var err error
		saved, err = tx.ReplaceWeeklySchedule(ctx, staff.ID, in)
		return err
	})
	if err != nil {
		t.Fatalf("ReplaceWeeklySchedule error: %v", err)
	}
	if saved[0].ID == 0 || saved[0].Breaks[0].WindowID != saved[0].ID {
		t.Fatalf("saved = %+v, want ids assigned", saved)
	}
	if in[0].Breaks[0].ID != 0 {
		t.Fatalf("input breaks were mutated")
	}

	saved[0].Breaks[0].StartTime = domain.MustWallClock("08:00")
	windows, err := s.ListWorkingWindows(context.Background(), staff.ID, time.Monday)
	if err != nil {
		t.Fatalf("ListWorkingWindows error: %v", err)
	}
	if windows[0].Breaks[0].StartTime != domain.MustWallClock("12:00") {
		t.Fatalf("stored break changed through returned copy")
	}
}

func TestInStaffTransaction_SerializesPerStaff(t *testing.T) {
	s, _, staff := seed(t)
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InStaffTransaction(context.Background(), staff.ID, func(ctx context.Context, tx store.ScheduleTx) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent transactions = %d, want 1", maxSeen)
	}
}

func TestGetStaffProfileByUser(t *testing.T) {
	s, _, staff := seed(t)
	got, err := s.GetStaffProfileByUser(context.Background(), 900)
	if err != nil {
		t.Fatalf("GetStaffProfileByUser error: %v", err)
	}
	if got.ID != staff.ID {
		t.Fatalf("id = %d, want %d", got.ID, staff.ID)
	}
	if _, err := s.GetStaffProfileByUser(context.Background(), 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateAppointment_IdempotencyKeyIsUniquePerCustomer(t *testing.T) {
	s, svc, staff := seed(t)
	other := s.AddStaff(domain.StaffProfile{UserID: 901, DisplayName: "Jo"})
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	create := func(staffID, customerID int64, key string) error {
		return s.InStaffTransaction(context.Background(), staffID, func(ctx context.Context, tx store.ScheduleTx) error {
			_, err := tx.CreateAppointment(ctx, domain.Appointment{
				StaffID:        staffID,
				ServiceID:      svc.ID,
				CustomerID:     customerID,
				StartTime:      start,
				EndTime:        start.Add(30 * time.Minute),
				Status:         domain.StatusPending,
				IdempotencyKey: key,
			})
			return err
		})
	}

	if err := create(staff.ID, 1, "req-1"); err != nil {
		t.Fatalf("first create error: %v", err)
	}
	if err := create(other.ID, 1, "req-1"); !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("reused key err = %v, want ErrIdempotencyConflict", err)
	}
	if err := create(other.ID, 2, "req-1"); err != nil {
		t.Fatalf("same key for another customer: %v", err)
	}

	got, err := s.GetAppointmentByIdempotencyKey(context.Background(), 1, "req-1")
	if err != nil {
		t.Fatalf("GetAppointmentByIdempotencyKey error: %v", err)
	}
	if got.StaffID != staff.ID || got.Service == nil {
		t.Fatalf("appointment = %+v", got)
	}
	if _, err := s.GetAppointmentByIdempotencyKey(context.Background(), 1, ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("empty key err = %v, want ErrNotFound", err)
	}
}
