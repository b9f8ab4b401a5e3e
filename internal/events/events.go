package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"barberbook/backend/internal/domain"
)

const (
	TypeAppointmentBooked      = "appointment.booked.v1"
	TypeAppointmentRescheduled = "appointment.rescheduled.v1"
	TypeAppointmentCancelled   = "appointment.cancelled.v1"
)

type AppointmentPayload struct {
	ID         int64                    `json:"id"`
	StaffID    int64                    `json:"staffId"`
	ServiceID  int64                    `json:"serviceId"`
	CustomerID int64                    `json:"customerId"`
	StartTime  time.Time                `json:"startTime"`
	EndTime    time.Time                `json:"endTime"`
	Status     domain.AppointmentStatus `json:"status"`
}

type Event struct {
	ID                string             `json:"id"`
	Type              string             `json:"type"`
	OccurredAt        time.Time          `json:"occurredAt"`
	Appointment       AppointmentPayload `json:"appointment"`
	PreviousStartTime *time.Time         `json:"previousStartTime,omitempty"`
}

func NewAppointmentEvent(eventType string, appt domain.Appointment, previousStart *time.Time, at time.Time) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	occupied := appt.Occupied()
	ev := Event{
		ID:         id.String(),
		Type:       eventType,
		OccurredAt: at.UTC(),
		Appointment: AppointmentPayload{
			ID:         appt.ID,
			StaffID:    appt.StaffID,
			ServiceID:  appt.ServiceID,
			CustomerID: appt.CustomerID,
			StartTime:  occupied.Start.UTC(),
			EndTime:    occupied.End.UTC(),
			Status:     appt.Status,
		},
	}
	if previousStart != nil {
		p := previousStart.UTC()
		ev.PreviousStartTime = &p
	}
	return ev
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }
