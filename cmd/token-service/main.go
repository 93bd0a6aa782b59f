package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/config"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/engine"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/estimate"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/httpapi"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/notify"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/projection"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store/memory"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store/postgres"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store/redisseq"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/telemetry"
)

type backend interface {
	store.TokenStore
	store.Sequencer
	store.Directory
	store.StaffStore
}

func main() {
	cfg := config.Load()

	shutdownTracing := telemetry.Setup(context.Background(), telemetry.ConfigFromEnv())

	var backing backend
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		backing = postgres.NewStore(pool)
	case "memory":
		seed := memory.DemoSeed()
		for username, hash := range cfg.StaffUsers {
			seed.Staff = append(seed.Staff, models.Staff{Username: username, PasswordHash: hash, Role: "staff"})
		}
		backing = memory.NewStore(seed)
		log.Printf("using in-memory store with demo directory, staff_users=%d", len(seed.Staff))
	default:
		log.Fatalf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	var sequencer store.Sequencer = backing
	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		sequencer = redisseq.New(client, redisseq.Options{})

		queueClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer queueClient.Close()
		notifier = notify.NewAsynqNotifier(queueClient, notify.AsynqOptions{Queue: cfg.NotifyQueue})
		log.Printf("redis sequencer and notification queue %s enabled", cfg.NotifyQueue)
	}

	averager := estimate.NewAverager(estimate.Config{
		Default:    cfg.DefaultConsultation,
		Window:     cfg.AverageWindow,
		MinSamples: cfg.AverageMinSamples,
	})
	eng := engine.New(backing, sequencer, backing, engine.Options{
		Averager:      averager,
		Notifier:      notifier,
		Location:      cfg.Location,
		RetentionDays: cfg.RetentionDays,
		AdvanceDepth:  cfg.NotifyAdvanceDepth,
	})

	rehydrateCtx, cancelRehydrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := eng.Rehydrate(rehydrateCtx); err != nil {
		log.Fatalf("rehydrate queues: %v", err)
	}
	cancelRehydrate()

	queries := projection.New(eng, backing, nil)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:    cfg.RateLimitPerMinute,
		IPBurst:        cfg.RateLimitBurst,
		StaffPerMinute: cfg.StaffRateLimitPerMinute,
		StaffBurst:     cfg.StaffRateLimitBurst,
	})
	handler := httpapi.NewHandler(eng, queries, backing, backing, limiter)

	scheduler := cron.New(cron.WithLocation(cfg.Location))
	if _, err := scheduler.AddFunc(cfg.RetentionCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if purged := eng.PurgeExpired(ctx); purged > 0 {
			log.Printf("retention purge removed %d tokens", purged)
		}
	}); err != nil {
		log.Fatalf("retention schedule %q: %v", cfg.RetentionCron, err)
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(handler.Routes())), telemetry.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("token-service listening on %s store=%s", server.Addr, cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	<-scheduler.Stop().Done()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("telemetry shutdown error: %v", err)
	}
}
