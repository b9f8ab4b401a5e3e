// Package memory is an in-process ScheduleStore. It serializes units of work
// per staff member and rejects overlapping writes the same way the Postgres
// exclusion constraint does, so it can stand in for the database in tests
// and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"barberbook/backend/internal/domain"
	"barberbook/backend/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	services map[int64]domain.Service
	staff    map[int64]domain.StaffProfile
	windows  map[int64][]domain.WorkingWindow
	appts    map[int64]domain.Appointment
	nextID   int64

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

func New() *Store {
	return &Store{
		services: make(map[int64]domain.Service),
		staff:    make(map[int64]domain.StaffProfile),
		windows:  make(map[int64][]domain.WorkingWindow),
		appts:    make(map[int64]domain.Appointment),
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddService stores svc, assigning an id when it has none.
func (s *Store) AddService(svc domain.Service) domain.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc.ID == 0 {
		svc.ID = s.id()
	} else if svc.ID > s.nextID {
		s.nextID = svc.ID
	}
	s.services[svc.ID] = svc
	return svc
}

// AddStaff stores p, assigning an id when it has none.
func (s *Store) AddStaff(p domain.StaffProfile) domain.StaffProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	} else if p.ID > s.nextID {
		s.nextID = p.ID
	}
	s.staff[p.ID] = p
	return p
}

// PutAppointment stores a without any overlap check. Tests use it to seed
// state; EndTime is derived from the service when it is zero.
func (s *Store) PutAppointment(a domain.Appointment) domain.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.id()
	} else if a.ID > s.nextID {
		s.nextID = a.ID
	}
	if a.EndTime.IsZero() {
		if svc, ok := s.services[a.ServiceID]; ok {
			a.EndTime = a.StartTime.Add(svc.Duration())
		}
	}
	a.Service = nil
	s.appts[a.ID] = a
	return a
}

// SetWeeklySchedule replaces a staff member's windows without validation.
func (s *Store) SetWeeklySchedule(staffID int64, windows []domain.WorkingWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceWindowsLocked(staffID, windows)
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) staffLock(staffID int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[staffID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[staffID] = l
	}
	return l
}

func (s *Store) InStaffTransaction(ctx context.Context, staffID int64, fn func(ctx context.Context, tx store.ScheduleTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.staffLock(staffID)
	l.Lock()
	defer l.Unlock()
	return fn(ctx, staffTx{Store: s})
}

func (s *Store) ListWorkingWindows(ctx context.Context, staffID int64, day time.Weekday) ([]domain.WorkingWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.WorkingWindow
	for _, w := range s.windows[staffID] {
		if w.DayOfWeek == day {
			out = append(out, copyWindow(w))
		}
	}
	return out, nil
}

func (s *Store) ListWeeklySchedule(ctx context.Context, staffID int64) ([]domain.WorkingWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.WorkingWindow, 0, len(s.windows[staffID]))
	for _, w := range s.windows[staffID] {
		out = append(out, copyWindow(w))
	}
	return out, nil
}

func (s *Store) ListAppointments(ctx context.Context, q store.AppointmentQuery) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Appointment
	for _, a := range s.appts {
		if a.StaffID != q.StaffID {
			continue
		}
		if q.ExcludeID != 0 && a.ID == q.ExcludeID {
			continue
		}
		if !q.IncludeCancelled && !a.Status.Blocks() {
			continue
		}
		if !a.StartTime.Before(q.To) || !a.EndTime.After(q.From) {
			continue
		}
		out = append(out, s.withServiceLocked(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Store) GetService(ctx context.Context, serviceID int64) (domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[serviceID]
	if !ok {
		return domain.Service{}, store.ErrNotFound
	}
	return svc, nil
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID int64) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[appointmentID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return s.withServiceLocked(a), nil
}

func (s *Store) GetAppointmentByIdempotencyKey(ctx context.Context, customerID int64, key string) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.byIdempotencyKeyLocked(customerID, key); ok {
		return s.withServiceLocked(a), nil
	}
	return domain.Appointment{}, store.ErrNotFound
}

func (s *Store) byIdempotencyKeyLocked(customerID int64, key string) (domain.Appointment, bool) {
	if key == "" {
		return domain.Appointment{}, false
	}
	for _, a := range s.appts {
		if a.CustomerID == customerID && a.IdempotencyKey == key {
			return a, true
		}
	}
	return domain.Appointment{}, false
}

func (s *Store) GetStaffProfile(ctx context.Context, staffID int64) (domain.StaffProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.staff[staffID]
	if !ok {
		return domain.StaffProfile{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetStaffProfileByUser(ctx context.Context, userID int64) (domain.StaffProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.staff {
		if p.UserID == userID {
			return p, nil
		}
	}
	return domain.StaffProfile{}, store.ErrNotFound
}

func (s *Store) withServiceLocked(a domain.Appointment) domain.Appointment {
	if svc, ok := s.services[a.ServiceID]; ok {
		a.Service = &svc
	}
	return a
}

// overlapsLocked mirrors appointments_no_overlap: same staff, both
// non-cancelled, stored ranges intersect.
func (s *Store) overlapsLocked(candidate domain.Appointment) bool {
	if !candidate.Status.Blocks() {
		return false
	}
	span := domain.Interval{Start: candidate.StartTime, End: candidate.EndTime}
	for _, a := range s.appts {
		if a.ID == candidate.ID || a.StaffID != candidate.StaffID || !a.Status.Blocks() {
			continue
		}
		if span.Overlaps(domain.Interval{Start: a.StartTime, End: a.EndTime}) {
			return true
		}
	}
	return false
}

func (s *Store) replaceWindowsLocked(staffID int64, windows []domain.WorkingWindow) []domain.WorkingWindow {
	saved := make([]domain.WorkingWindow, 0, len(windows))
	for _, w := range windows {
		w = copyWindow(w)
		w.ID = s.id()
		w.StaffID = staffID
		for i := range w.Breaks {
			w.Breaks[i].ID = s.id()
			w.Breaks[i].WindowID = w.ID
		}
		saved = append(saved, w)
	}
	s.windows[staffID] = saved

	out := make([]domain.WorkingWindow, 0, len(saved))
	for _, w := range saved {
		out = append(out, copyWindow(w))
	}
	return out
}

func copyWindow(w domain.WorkingWindow) domain.WorkingWindow {
	w.Breaks = append([]domain.Break(nil), w.Breaks...)
	return w
}

// staffTx is handed to InStaffTransaction callbacks while the staff lock
// is held.
type staffTx struct {
	*Store
}

func (t staffTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	appt.ID = 0
	if _, taken := t.byIdempotencyKeyLocked(appt.CustomerID, appt.IdempotencyKey); taken {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	if t.overlapsLocked(appt) {
		return domain.Appointment{}, store.ErrConflict
	}
	now := time.Now().UTC()
	appt.ID = t.id()
	appt.Service = nil
	appt.CreatedAt = now
	appt.UpdatedAt = now
	t.appts[appt.ID] = appt
	return t.withServiceLocked(appt), nil
}

func (t staffTx) UpdateAppointmentStartTime(ctx context.Context, appointmentID int64, start, end time.Time) (domain.Appointment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.appts[appointmentID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	a.StartTime = start
	a.EndTime = end
	if t.overlapsLocked(a) {
		return domain.Appointment{}, store.ErrConflict
	}
	a.UpdatedAt = time.Now().UTC()
	t.appts[a.ID] = a
	return t.withServiceLocked(a), nil
}

func (t staffTx) UpdateAppointmentStatus(ctx context.Context, appointmentID int64, status domain.AppointmentStatus) (domain.Appointment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.appts[appointmentID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	a.Status = status
	if t.overlapsLocked(a) {
		return domain.Appointment{}, store.ErrConflict
	}
	a.UpdatedAt = time.Now().UTC()
	t.appts[a.ID] = a
	return t.withServiceLocked(a), nil
}

func (t staffTx) ReplaceWeeklySchedule(ctx context.Context, staffID int64, windows []domain.WorkingWindow) ([]domain.WorkingWindow, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.replaceWindowsLocked(staffID, windows), nil
}
