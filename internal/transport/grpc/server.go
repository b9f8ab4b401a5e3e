package grpc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service name reported alongside the overall "" entry.
const ServiceName = "barberbook.Scheduling"

const requestIDMetadataKey = "x-request-id"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	RequestTimeout time.Duration
	// PollInterval is how often the store is pinged to refresh health status.
	PollInterval time.Duration
	Store        Pinger
	Logger       *slog.Logger
}

// Server is the operational gRPC endpoint: standard health checking and
// reflection, with serving status following store reachability.
type Server struct {
	*grpc.Server

	health   *health.Server
	store    Pinger
	interval time.Duration
	log      *slog.Logger
}

func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "grpc"))
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			requestIDInterceptor(),
			defaultRequestTimeoutInterceptor(cfg.RequestTimeout),
			loggingInterceptor(log),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &Server{Server: gs, health: hs, store: cfg.Store, interval: interval, log: log}
	s.setServing(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// WatchStore refreshes health status until ctx is done, then marks every
// service NOT_SERVING so load balancers drain before GracefulStop.
func (s *Server) WatchStore(ctx context.Context) {
	s.refresh(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-t.C:
			s.refresh(ctx)
		}
	}
}

func (s *Server) refresh(ctx context.Context) {
	if s.store == nil {
		s.setServing(healthpb.HealthCheckResponse_SERVING)
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.store.Ping(pingCtx); err != nil {
		if ctx.Err() == nil {
			s.log.Warn("store ping failed", slog.Any("err", err))
		}
		s.setServing(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.setServing(healthpb.HealthCheckResponse_SERVING)
}

func (s *Server) setServing(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

func defaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

type requestIDKey struct{}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// requestIDInterceptor reads x-request-id from incoming metadata, or mints
// one, and echoes it back in the response header.
func requestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(requestIDMetadataKey); len(vals) > 0 {
				id = strings.TrimSpace(vals[0])
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, id))
		return handler(context.WithValue(ctx, requestIDKey{}, id), req)
	}
}

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		log.Debug("rpc",
			slog.String("rpc", info.FullMethod),
			slog.String("request_id", RequestIDFromContext(ctx)),
			slog.String("code", code.String()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return resp, err
	}
}
