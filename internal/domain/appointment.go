package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

// Blocks reports whether an appointment in this status occupies its interval.
func (s AppointmentStatus) Blocks() bool {
	return s != StatusCancelled
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID             int64             `bun:"id,pk,autoincrement" json:"id"`
	StaffID        int64             `bun:"staff_id,notnull" json:"staffId"`
	ServiceID      int64             `bun:"service_id,notnull" json:"serviceId"`
	CustomerID     int64             `bun:"customer_id,notnull" json:"customerId"`
	StartTime      time.Time         `bun:"start_time,notnull" json:"startTime"`
	EndTime        time.Time         `bun:"end_time,notnull" json:"endTime"`
	Status         AppointmentStatus `bun:"status,notnull" json:"status"`
	IdempotencyKey string            `bun:"idempotency_key,nullzero" json:"-"`
	Service        *Service          `bun:"rel:belongs-to,join:service_id=id" json:"-"`
	CreatedAt      time.Time         `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt      time.Time         `bun:"updated_at,notnull" json:"updatedAt"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Occupied returns [StartTime, StartTime+duration) using the joined
// service. EndTime is only a denormalized copy kept for the storage-level
// exclusion constraint.
func (a Appointment) Occupied() Interval {
	if a.Service != nil {
		return Interval{Start: a.StartTime, End: a.StartTime.Add(a.Service.Duration())}
	}
	return Interval{Start: a.StartTime, End: a.EndTime}
}

type Service struct {
	bun.BaseModel `bun:"table:services"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	ShopID          int64     `bun:"shop_id,notnull" json:"shopId"`
	Name            string    `bun:"name,notnull" json:"name"`
	DurationMinutes int       `bun:"duration_minutes,notnull" json:"duration"`
	BufferMinutes   int       `bun:"buffer_minutes,notnull" json:"bufferTime"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"-"`
	UpdatedAt       time.Time `bun:"updated_at,notnull" json:"-"`
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// StaffProfile links an authenticated user to the staff id used by
// schedules and appointments.
type StaffProfile struct {
	bun.BaseModel `bun:"table:staff_profiles"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	ShopID      int64     `bun:"shop_id,notnull" json:"shopId"`
	UserID      int64     `bun:"user_id,notnull,unique" json:"userId"`
	DisplayName string    `bun:"display_name,notnull" json:"displayName"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"-"`
}

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleStaff    Role = "STAFF"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller of a scheduling operation.
type Actor struct {
	ID   int64
	Role Role
}
