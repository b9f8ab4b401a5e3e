package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"barberbook/backend/internal/domain"
	"barberbook/backend/internal/events"
	"barberbook/backend/internal/store"
)

const (
	DefaultGranularity     = 15 * time.Minute
	DefaultRescheduleLimit = 24 * time.Hour
)

// EventPublisher receives appointment events after the owning transaction
// has committed.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Recorder observes scheduling outcomes.
type Recorder interface {
	ObserveDecision(operation, outcome string)
	ObserveSlots(count int)
}

// Engine implements slot generation, conflict checks and the reschedule,
// booking and cancellation rules on top of an injected ScheduleStore.
type Engine struct {
	store   store.ScheduleStore
	loc     *time.Location
	step    time.Duration
	cutoff  time.Duration
	now     func() time.Time
	events  EventPublisher
	metrics Recorder
	log     *slog.Logger
	tracer  trace.Tracer
}

type Option func(*Engine)

// WithLocation sets the shop timezone used for every wall-clock comparison.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithGranularity(step time.Duration) Option {
	return func(e *Engine) {
		if step > 0 {
			e.step = step
		}
	}
}

func WithRescheduleCutoff(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.cutoff = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.events = p }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

func NewEngine(st store.ScheduleStore, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		loc:    time.UTC,
		step:   DefaultGranularity,
		cutoff: DefaultRescheduleLimit,
		now:    time.Now,
		log:    slog.Default(),
		tracer: otel.Tracer("barberbook/scheduling"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(slog.String("component", "scheduling"))
	return e
}

func (e *Engine) Location() *time.Location { return e.loc }

func (e *Engine) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "scheduling."+name, opts...)
}

// finish records the outcome of one operation on the span and the recorder.
func (e *Engine) finish(span trace.Span, operation string, err error) {
	outcome := "ok"
	if err != nil {
		if kind, ok := KindOf(err); ok {
			outcome = kind.Code()
		} else {
			var vErr *ValidationError
			if errors.As(err, &vErr) {
				outcome = "invalid_request"
			} else {
				outcome = "error"
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
	}
	if e.metrics != nil {
		e.metrics.ObserveDecision(operation, outcome)
	}
	span.End()
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.log.Warn("event publish failed",
			slog.String("event_type", ev.Type),
			slog.Int64("appointment_id", ev.Appointment.ID),
			slog.Any("err", err),
		)
	}
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return reject(KindNotFound, msg)
	}
	return err
}

// serviceFor returns the joined service or loads it.
func serviceFor(ctx context.Context, r store.ScheduleReader, appt domain.Appointment) (domain.Service, error) {
	if appt.Service != nil {
		return *appt.Service, nil
	}
	svc, err := r.GetService(ctx, appt.ServiceID)
	if err != nil {
		return domain.Service{}, notFoundOr(err, "service not found")
	}
	return svc, nil
}
