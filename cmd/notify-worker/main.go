package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/config"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/notify"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store/memory"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if cfg.RedisAddr == "" {
		log.Fatalf("notify-worker requires REDIS_ADDR")
	}

	var patients notify.PatientLookup
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		patients = postgres.NewStore(pool)
	default:
		patients = memory.NewStore(memory.DemoSeed())
	}

	worker := notify.NewWorker(patients, notify.WorkerConfig{
		SMS:              notify.ProviderFor(notify.ChannelSMS, cfg.NotifySMSProvider, cfg.NotifyWebhookToken),
		Email:            notify.ProviderFor(notify.ChannelEmail, cfg.NotifyEmailProvider, cfg.NotifyWebhookToken),
		RemindAtPosition: cfg.NotifyRemindAt,
	})

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.NotifyConcurrency,
			Queues:      map[string]int{cfg.NotifyQueue: 1},
		},
	)
	mux := asynq.NewServeMux()
	worker.Register(mux)

	if err := srv.Start(mux); err != nil {
		log.Fatalf("notify-worker start: %v", err)
	}
	log.Printf("notify-worker consuming queue=%s concurrency=%d", cfg.NotifyQueue, cfg.NotifyConcurrency)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	srv.Shutdown()
}
