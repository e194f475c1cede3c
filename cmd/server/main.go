package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/experience-booking/internal/availability"
	"github.com/iliyamo/experience-booking/internal/booking"
	"github.com/iliyamo/experience-booking/internal/cache"
	"github.com/iliyamo/experience-booking/internal/clock"
	"github.com/iliyamo/experience-booking/internal/config"
	"github.com/iliyamo/experience-booking/internal/database"
	"github.com/iliyamo/experience-booking/internal/handler"
	"github.com/iliyamo/experience-booking/internal/logger"
	"github.com/iliyamo/experience-booking/internal/middleware"
	"github.com/iliyamo/experience-booking/internal/queue"
	"github.com/iliyamo/experience-booking/internal/ratelimit"
	"github.com/iliyamo/experience-booking/internal/repository"
	"github.com/iliyamo/experience-booking/internal/repository/memory"
	"github.com/iliyamo/experience-booking/internal/router"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	clk := clock.New()
	health := &handler.HealthHandler{Critical: map[string]handler.Check{}, Optional: map[string]handler.Check{}}

	store, db, err := openStore(ctx, cfg, zl)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		health.Critical["database"] = db.PingContext
	}

	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		zl.Warn("redis unavailable, using in-process cache and limiter", zap.Error(err))
	} else {
		defer rdb.Close()
		health.Optional["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	calcOpts := []availability.Option{
		availability.WithMaxOccurrences(cfg.Booking.MaxOccurrences),
		availability.WithLogger(zl),
	}
	var invalidator booking.Invalidator
	if cfg.Cache.Enabled {
		var backend cache.Backend = cache.NewMemoryBackend(clk)
		if rdb != nil {
			backend = cache.NewRedisBackend(rdb)
		}
		vc := cache.NewVersioned(backend, cfg.Cache.Prefix, cfg.Cache.TTL, zl)
		calcOpts = append(calcOpts, availability.WithCache(vc))
		invalidator = vc
	}
	calc := availability.NewCalculator(store, clk, calcOpts...)

	svc := booking.New(store, booking.Options{
		Clock:       clk,
		Logger:      zl,
		Cache:       invalidator,
		HoldTimeout: cfg.Booking.HoldTimeout,
		SweepBatch:  cfg.Booking.SweepBatch,
	})

	limiter, err := newLimiter(cfg.RateLimit, rdb, clk)
	if err != nil {
		return err
	}
	if p, ok := limiter.(ratelimit.Pruner); ok {
		go pruneLoop(ctx, p)
	}

	var pub queue.Publisher = queue.LogPublisher{Log: zl}
	if cfg.Rabbit.URL != "" {
		rp := queue.NewRabbitPublisher(cfg.Rabbit.URL, cfg.Rabbit.Exchange, zl)
		defer rp.Close()
		pub = rp
		consumer := queue.NewConsumer(cfg.Rabbit.URL, cfg.Rabbit.Exchange, cfg.Rabbit.NotificationQueue, nil,
			queue.NotificationLogger(zl), zl)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	}
	go queue.NewDispatcher(store, pub, clk, zl).Run(ctx, cfg.Rabbit.PollInterval)
	go svc.RunSweeper(ctx, cfg.Booking.SweepInterval)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(zl))
	if cfg.RateLimit.Enabled && cfg.RateLimit.IPRPS > 0 {
		guard := ratelimit.NewIPGuard(cfg.RateLimit.IPRPS, cfg.RateLimit.IPBurst)
		e.Use(middleware.IPGuard(guard, zl))
		go pruneLoop(ctx, guard)
	}
	router.Register(e, router.Deps{
		JWTSecret:     cfg.JWTSecret,
		SystemKeyHash: cfg.SystemKeyHash,
		Limiter:       limiter,
		Log:           zl,
		Health:        health,
		Availability:  handler.NewAvailabilityHandler(calc, svc, zl),
		Slots:         handler.NewSlotHandler(svc, zl),
		Reservations:  handler.NewReservationHandler(svc, zl),
		Holds:         handler.NewHoldHandler(svc, zl),
	})

	addr := ":" + cfg.Port
	errc := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}

func openStore(ctx context.Context, cfg config.Config, zl *zap.Logger) (repository.Store, *sql.DB, error) {
	if cfg.StoreDriver == config.DriverMemory {
		zl.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil, nil
	}
	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repository.NewMySQLStore(db), db, nil
}

func newLimiter(c config.RateLimitConfig, rdb *redis.Client, clk clock.Clock) (ratelimit.Limiter, error) {
	if !c.Enabled {
		return ratelimit.Disabled{}, nil
	}
	strategy, err := ratelimit.ParseStrategy(c.Strategy)
	if err != nil {
		return nil, err
	}
	rules := ratelimit.Rules{
		Default:   ratelimit.Rule{Limit: c.Limit, Window: c.Window},
		PerAction: make(map[string]ratelimit.Rule, len(c.PerAction)),
	}
	for action, l := range c.PerAction {
		rules.PerAction[action] = ratelimit.Rule{Limit: l.Limit, Window: l.Window}
	}
	if rdb != nil {
		return ratelimit.NewRedis(rdb, rules, strategy, c.Prefix, clk), nil
	}
	return ratelimit.NewMemory(rules, strategy, c.Prefix, clk), nil
}

func pruneLoop(ctx context.Context, p ratelimit.Pruner) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			p.Prune(now)
		}
	}
}
