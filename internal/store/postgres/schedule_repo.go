package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"barberbook/backend/internal/domain"
	"barberbook/backend/internal/store"
)

const (
	noOverlapConstraint = "appointments_no_overlap"
	idempotencyKeyIndex = "appointments_idempotency_key"
)

// ScheduleRepo is the bun-backed store.ScheduleStore.
type ScheduleRepo struct {
	queries
	db *bun.DB
}

func NewScheduleRepo(db *bun.DB) *ScheduleRepo {
	return &ScheduleRepo{queries: queries{db: db}, db: db}
}

// queries holds the reads shared by the repo and its transactions.
type queries struct {
	db bun.IDB
}

type scheduleTx struct {
	queries
	tx bun.Tx
}

func (r *ScheduleRepo) InStaffTransaction(ctx context.Context, staffID int64, fn func(ctx context.Context, tx store.ScheduleTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockStaffSchedule(ctx, tx, staffID); err != nil {
			return err
		}
		return fn(ctx, scheduleTx{queries: queries{db: tx}, tx: tx})
	})
}

func (r *ScheduleRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func lockStaffSchedule(ctx context.Context, tx bun.Tx, staffID int64) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "staff:"+strconv.FormatInt(staffID, 10)).Exec(ctx)
	return err
}

func (q queries) ListWorkingWindows(ctx context.Context, staffID int64, day time.Weekday) ([]domain.WorkingWindow, error) {
	var rows []domain.WorkingWindow
	err := q.db.NewSelect().
		Model(&rows).
		Relation("Breaks", orderBreaks).
		Where("staff_id = ?", staffID).
		Where("day_of_week = ?", int(day)).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (q queries) ListWeeklySchedule(ctx context.Context, staffID int64) ([]domain.WorkingWindow, error) {
	var rows []domain.WorkingWindow
	err := q.db.NewSelect().
		Model(&rows).
		Relation("Breaks", orderBreaks).
		Where("staff_id = ?", staffID).
		OrderExpr("day_of_week ASC, start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func orderBreaks(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("start_time ASC")
}

func (q queries) ListAppointments(ctx context.Context, aq store.AppointmentQuery) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	sel := q.db.NewSelect().
		Model(&rows).
		Relation("Service").
		Where("?TableAlias.staff_id = ?", aq.StaffID).
		Where("?TableAlias.start_time < ?", aq.To).
		Where("?TableAlias.end_time > ?", aq.From)
	if !aq.IncludeCancelled {
		sel = sel.Where("?TableAlias.status <> ?", domain.StatusCancelled)
	}
	if aq.ExcludeID != 0 {
		sel = sel.Where("?TableAlias.id <> ?", aq.ExcludeID)
	}
	if err := sel.OrderExpr("?TableAlias.start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (q queries) GetService(ctx context.Context, serviceID int64) (domain.Service, error) {
	var svc domain.Service
	err := q.db.NewSelect().Model(&svc).Where("id = ?", serviceID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Service{}, notFound(err)
	}
	return svc, nil
}

func (q queries) GetAppointment(ctx context.Context, appointmentID int64) (domain.Appointment, error) {
	var appt domain.Appointment
	err := q.db.NewSelect().
		Model(&appt).
		Relation("Service").
		Where("?TableAlias.id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return appt, nil
}

func (q queries) GetAppointmentByIdempotencyKey(ctx context.Context, customerID int64, key string) (domain.Appointment, error) {
	var appt domain.Appointment
	err := q.db.NewSelect().
		Model(&appt).
		Relation("Service").
		Where("?TableAlias.customer_id = ?", customerID).
		Where("?TableAlias.idempotency_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return appt, nil
}

func (q queries) GetStaffProfile(ctx context.Context, staffID int64) (domain.StaffProfile, error) {
	var p domain.StaffProfile
	err := q.db.NewSelect().Model(&p).Where("id = ?", staffID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.StaffProfile{}, notFound(err)
	}
	return p, nil
}

func (q queries) GetStaffProfileByUser(ctx context.Context, userID int64) (domain.StaffProfile, error) {
	var p domain.StaffProfile
	err := q.db.NewSelect().Model(&p).Where("user_id = ?", userID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.StaffProfile{}, notFound(err)
	}
	return p, nil
}

func (r scheduleTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := domain.Appointment{
		StaffID:        appt.StaffID,
		ServiceID:      appt.ServiceID,
		CustomerID:     appt.CustomerID,
		StartTime:      appt.StartTime,
		EndTime:        appt.EndTime,
		Status:         appt.Status,
		IdempotencyKey: appt.IdempotencyKey,
	}
	if _, err := r.tx.NewInsert().Model(&m).Returning("*").Exec(ctx); err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	return r.GetAppointment(ctx, m.ID)
}

func (r scheduleTx) UpdateAppointmentStartTime(ctx context.Context, appointmentID int64, start, end time.Time) (domain.Appointment, error) {
	res, err := r.tx.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("start_time = ?", start).
		Set("end_time = ?", end).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", appointmentID).
		Exec(ctx)
	if err := affectedOne(res, err); err != nil {
		return domain.Appointment{}, err
	}
	return r.GetAppointment(ctx, appointmentID)
}

func (r scheduleTx) UpdateAppointmentStatus(ctx context.Context, appointmentID int64, status domain.AppointmentStatus) (domain.Appointment, error) {
	res, err := r.tx.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", appointmentID).
		Exec(ctx)
	if err := affectedOne(res, err); err != nil {
		return domain.Appointment{}, err
	}
	return r.GetAppointment(ctx, appointmentID)
}

// ReplaceWeeklySchedule deletes the staff member's windows (breaks cascade)
// and inserts the new set.
func (r scheduleTx) ReplaceWeeklySchedule(ctx context.Context, staffID int64, windows []domain.WorkingWindow) ([]domain.WorkingWindow, error) {
	_, err := r.tx.NewDelete().
		Model((*domain.WorkingWindow)(nil)).
		Where("staff_id = ?", staffID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return []domain.WorkingWindow{}, nil
	}

	rows := make([]domain.WorkingWindow, 0, len(windows))
	for _, w := range windows {
		rows = append(rows, domain.WorkingWindow{
			StaffID:     staffID,
			DayOfWeek:   w.DayOfWeek,
			StartTime:   w.StartTime,
			EndTime:     w.EndTime,
			IsAvailable: w.IsAvailable,
		})
	}
	if _, err := r.tx.NewInsert().Model(&rows).Returning("id").Exec(ctx); err != nil {
		return nil, mapWriteError(err)
	}

	var breaks []domain.Break
	for i, w := range windows {
		for _, b := range w.Breaks {
			breaks = append(breaks, domain.Break{WindowID: rows[i].ID, StartTime: b.StartTime, EndTime: b.EndTime})
		}
	}
	if len(breaks) > 0 {
		if _, err := r.tx.NewInsert().Model(&breaks).Returning("id").Exec(ctx); err != nil {
			return nil, mapWriteError(err)
		}
	}

	return r.ListWeeklySchedule(ctx, staffID)
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapWriteError translates constraint violations into store errors.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == "23P01" && pgErr.ConstraintName == noOverlapConstraint:
		return store.ErrConflict
	case pgErr.Code == "23505" && pgErr.ConstraintName == idempotencyKeyIndex:
		return store.ErrIdempotencyConflict
	case pgErr.Code == "23503":
		return store.ErrNotFound
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
