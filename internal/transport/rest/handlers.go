package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"barberbook/backend/internal/domain"
	"barberbook/backend/internal/service/scheduling"
)

const maxBodyBytes = 1 << 20

// Scheduler is the slice of the scheduling engine the HTTP API serves.
type Scheduler interface {
	GenerateSlots(ctx context.Context, staffID, serviceID int64, date domain.Date) ([]time.Time, error)
	Reschedule(ctx context.Context, in scheduling.RescheduleInput) (domain.Appointment, error)
	Book(ctx context.Context, in scheduling.BookInput) (domain.Appointment, error)
	Cancel(ctx context.Context, in scheduling.CancelInput) (domain.Appointment, error)
	WeeklySchedule(ctx context.Context, staffID int64) ([]domain.WorkingWindow, error)
	ReplaceWeeklySchedule(ctx context.Context, staffID int64, actor domain.Actor, windows []domain.WorkingWindow) ([]domain.WorkingWindow, error)
	Service(ctx context.Context, serviceID int64) (domain.Service, error)
	Location() *time.Location
}

type Handler struct {
	sched    Scheduler
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandler(sched Scheduler, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{sched: sched, validate: v, log: log}
}

type availabilityQuery struct {
	StaffID   int64  `json:"staffId" validate:"gt=0"`
	ServiceID int64  `json:"serviceId" validate:"gt=0"`
	Date      string `json:"date" validate:"required"`
}

type rescheduleRequest struct {
	NewStartTime *time.Time `json:"newStartTime" validate:"required"`
}

type bookRequest struct {
	StaffID    int64      `json:"staffId" validate:"gt=0"`
	ServiceID  int64      `json:"serviceId" validate:"gt=0"`
	CustomerID int64      `json:"customerId" validate:"omitempty,gt=0"`
	StartTime  *time.Time `json:"startTime" validate:"required"`
}

type breakRequest struct {
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
}

type windowRequest struct {
	DayOfWeek   *int           `json:"dayOfWeek" validate:"required,min=0,max=6"`
	StartTime   string         `json:"startTime" validate:"required"`
	EndTime     string         `json:"endTime" validate:"required"`
	IsAvailable *bool          `json:"isAvailable"`
	Breaks      []breakRequest `json:"breaks" validate:"dive"`
}

type workingHoursRequest struct {
	Windows []windowRequest `json:"windows" validate:"dive"`
}

type appointmentResponse struct {
	ID         int64  `json:"id"`
	StaffID    int64  `json:"staffId"`
	ServiceID  int64  `json:"serviceId"`
	CustomerID int64  `json:"customerId"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Status     string `json:"status"`
}

func (h *Handler) toAppointmentResponse(a domain.Appointment) appointmentResponse {
	loc := h.sched.Location()
	occ := a.Occupied()
	return appointmentResponse{
		ID:         a.ID,
		StaffID:    a.StaffID,
		ServiceID:  a.ServiceID,
		CustomerID: a.CustomerID,
		StartTime:  occ.Start.In(loc).Format(time.RFC3339),
		EndTime:    occ.End.In(loc).Format(time.RFC3339),
		Status:     string(a.Status),
	}
}

// Availability serves GET /v1/availability?staffId=&serviceId=&date=YYYY-MM-DD
// as a JSON array of RFC 3339 start times in the shop's time zone.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		in  availabilityQuery
		err error
	)
	if in.StaffID, err = parseQueryID(q.Get("staffId")); err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", "staffId must be an integer")
		return
	}
	if in.ServiceID, err = parseQueryID(q.Get("serviceId")); err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", "serviceId must be an integer")
		return
	}
	in.Date = strings.TrimSpace(q.Get("date"))
	if err := h.validateStruct(in); err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	date, err := domain.ParseDate(in.Date)
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	slots, err := h.sched.GenerateSlots(r.Context(), in.StaffID, in.ServiceID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	loc := h.sched.Location()
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.In(loc).Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, out)
}

// Reschedule serves PATCH /v1/appointments/{appointmentId}/reschedule.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeErrorBody(w, http.StatusUnauthorized, "unauthenticated", "missing actor")
		return
	}
	id, err := pathID(r, "appointmentId")
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	var req rescheduleRequest
	if err := h.decode(w, r, &req); err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	appt, err := h.sched.Reschedule(r.Context(), scheduling.RescheduleInput{
		AppointmentID: id,
		NewStartTime:  *req.NewStartTime,
		Actor:         actor,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toAppointmentResponse(appt))
}

// IdempotencyKeyHeader lets a client retry POST /v1/appointments safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// Book serves POST /v1/appointments. A retry carrying the same
// Idempotency-Key gets the original appointment back with the same 201.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeErrorBody(w, http.StatusUnauthorized, "unauthenticated", "missing actor")
		return
	}
	var req bookRequest
	if err := h.decode(w, r, &req); err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	appt, err := h.sched.Book(r.Context(), scheduling.BookInput{
		StaffID:        req.StaffID,
		ServiceID:      req.ServiceID,
		CustomerID:     req.CustomerID,
		StartTime:      *req.StartTime,
		Actor:          actor,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toAppointmentResponse(appt))
}

// Cancel serves POST /v1/appointments/{appointmentId}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeErrorBody(w, http.StatusUnauthorized, "unauthenticated", "missing actor")
		return
	}
	id, err := pathID(r, "appointmentId")
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	appt, err := h.sched.Cancel(r.Context(), scheduling.CancelInput{AppointmentID: id, Actor: actor})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toAppointmentResponse(appt))
}

func (h *Handler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	staffID, err := pathID(r, "staffId")
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	windows, err := h.sched.WeeklySchedule(r.Context(), staffID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, windows)
}

// ReplaceWorkingHours serves PUT /v1/staff/{staffId}/working-hours. The body
// replaces the whole weekly schedule.
func (h *Handler) ReplaceWorkingHours(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeErrorBody(w, http.StatusUnauthorized, "unauthenticated", "missing actor")
		return
	}
	staffID, err := pathID(r, "staffId")
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	var req workingHoursRequest
	if err := h.decode(w, r, &req); err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	windows, err := req.toDomain(staffID)
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	out, err := h.sched.ReplaceWeeklySchedule(r.Context(), staffID, actor, windows)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "serviceId")
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	svc, err := h.sched.Service(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (req workingHoursRequest) toDomain(staffID int64) ([]domain.WorkingWindow, error) {
	out := make([]domain.WorkingWindow, 0, len(req.Windows))
	for i, wr := range req.Windows {
		start, err := domain.ParseWallClock(wr.StartTime)
		if err != nil {
			return nil, fmt.Errorf("windows[%d].startTime: %w", i, err)
		}
		end, err := domain.ParseWallClock(wr.EndTime)
		if err != nil {
			return nil, fmt.Errorf("windows[%d].endTime: %w", i, err)
		}
		available := true
		if wr.IsAvailable != nil {
			available = *wr.IsAvailable
		}
		win := domain.WorkingWindow{
			StaffID:     staffID,
			DayOfWeek:   time.Weekday(*wr.DayOfWeek),
			StartTime:   start,
			EndTime:     end,
			IsAvailable: available,
		}
		for j, br := range wr.Breaks {
			bs, err := domain.ParseWallClock(br.StartTime)
			if err != nil {
				return nil, fmt.Errorf("windows[%d].breaks[%d].startTime: %w", i, j, err)
			}
			be, err := domain.ParseWallClock(br.EndTime)
			if err != nil {
				return nil, fmt.Errorf("windows[%d].breaks[%d].endTime: %w", i, j, err)
			}
			win.Breaks = append(win.Breaks, domain.Break{StartTime: bs, EndTime: be})
		}
		out = append(out, win)
	}
	return out, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return h.validateStruct(dst)
}

func (h *Handler) validateStruct(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%s failed %q validation", fe.Namespace(), fe.Tag())
	}
	return err
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return id, nil
}

func parseQueryID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
