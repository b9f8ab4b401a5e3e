package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"

	"barberbook/backend/internal/config"
	"barberbook/backend/internal/domain"
	"barberbook/backend/internal/events"
	"barberbook/backend/internal/metrics"
	"barberbook/backend/internal/service/scheduling"
	"barberbook/backend/internal/store"
	"barberbook/backend/internal/store/memory"
	"barberbook/backend/internal/store/postgres"
	"barberbook/backend/internal/telemetry"
	grpcTransport "barberbook/backend/internal/transport/grpc"
	"barberbook/backend/internal/transport/rest"
)

const serviceName = "barberbook-server"

type publisher interface {
	scheduling.EventPublisher
	io.Closer
}

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run wires and serves until a signal or a server failure. Every failure is
// logged before it is returned, and deferred cleanups run on every path.
func run() error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		return err
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("grpc_addr", cfg.GRPCAddr),
		slog.String("store", cfg.StoreDriver),
		slog.String("timezone", cfg.Location.String()),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Error("tracing setup failed", slog.Any("err", err))
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown failed", slog.Any("err", err))
		}
	}()

	st, closeStore, err := openStore(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pub := openPublisher(log, cfg)
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn("event publisher close failed", slog.Any("err", err))
		}
	}()

	engine := scheduling.NewEngine(st,
		scheduling.WithLocation(cfg.Location),
		scheduling.WithGranularity(cfg.SlotGranularity),
		scheduling.WithRescheduleCutoff(cfg.RescheduleCutoff),
		scheduling.WithEventPublisher(pub),
		scheduling.WithRecorder(metrics.NewSchedulingMetrics(reg)),
		scheduling.WithLogger(log),
	)

	readyChecks := []rest.ReadyCheck{{Name: "store", Check: st.Ping}}
	var limiter *rest.RateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()
		limiter = rest.NewRateLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow, log)
		readyChecks = append(readyChecks, rest.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if cfg.JWTSecret == "" {
		log.Warn("no JWT secret configured; authenticated routes will reject every request")
	}

	router := rest.NewRouter(rest.RouterConfig{
		Scheduler:      engine,
		Logger:         log,
		JWTSecret:      cfg.JWTSecret,
		RequestTimeout: cfg.RequestTimeout,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimiter:    limiter,
		HTTPMetrics:    metrics.NewHTTPMetrics(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadyChecks:    readyChecks,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "barberbook-http"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcTransport.NewServer(grpcTransport.Config{
		RequestTimeout: cfg.RequestTimeout,
		Store:          st,
		Logger:         log,
	})
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr))
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go grpcServer.WatchStore(watchCtx)

	log.Info("servers started", slog.String("http_addr", cfg.HTTPAddr), slog.String("grpc_addr", cfg.GRPCAddr))

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			serveErr = err
		}
	}
	stopWatch()
	shutdown(log, httpServer, grpcServer.Server, cfg.ShutdownTimeout)
	return serveErr
}

func openStore(ctx context.Context, log *slog.Logger, cfg config.Config) (store.ScheduleStore, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store; data is lost on restart")
		st := memory.New()
		seedDemo(st)
		return st, func() {}, nil
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}, postgres.WithSlowQueryLog(log, cfg.DBSlowQuery))
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return nil, nil, err
	}
	closeDB := func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}

	if cfg.MigrateOnStart {
		if err := postgres.MigrateWithLogger(ctx, db, log); err != nil {
			log.Error("database migration failed", slog.Any("err", err))
			closeDB()
			return nil, nil, err
		}
		log.Info("database migrations applied")
	}
	return postgres.NewScheduleRepo(db), closeDB, nil
}

func openPublisher(log *slog.Logger, cfg config.Config) publisher {
	if len(cfg.KafkaBrokers) == 0 {
		log.Info("no kafka brokers configured; appointment events are dropped")
		return events.NopPublisher{}
	}
	p, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:      strings.Join(cfg.KafkaBrokers, ","),
		Topic:        cfg.KafkaTopic,
		WriteTimeout: cfg.KafkaWriteTimeout,
	})
	if err != nil {
		log.Warn("kafka publisher disabled", slog.Any("err", err))
		return events.NopPublisher{}
	}
	log.Info("publishing appointment events", slog.String("topic", cfg.KafkaTopic))
	return p
}

// seedDemo gives the in-memory store one service and one staff member
// working weekdays 09:00-17:00 with a lunch break.
func seedDemo(st *memory.Store) {
	st.AddService(domain.Service{ShopID: 1, Name: "Haircut", DurationMinutes: 30, BufferMinutes: 5})
	staff := st.AddStaff(domain.StaffProfile{ShopID: 1, UserID: 1000, DisplayName: "Demo Barber"})
	var windows []domain.WorkingWindow
	for day := time.Monday; day <= time.Friday; day++ {
		windows = append(windows, domain.WorkingWindow{
			DayOfWeek:   day,
			StartTime:   domain.MustWallClock("09:00"),
			EndTime:     domain.MustWallClock("17:00"),
			IsAvailable: true,
			Breaks: []domain.Break{{
				StartTime: domain.MustWallClock("12:00"),
				EndTime:   domain.MustWallClock("13:00"),
			}},
		})
	}
	st.SetWeeklySchedule(staff.ID, windows)
}

func shutdown(log *slog.Logger, hs *http.Server, gs *grpc.Server, timeout time.Duration) {
	log.Info("shutting down servers", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := hs.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		gs.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
