package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pentabot/backend/internal/ai"
	"github.com/pentabot/backend/internal/apperr"
	"github.com/pentabot/backend/internal/chat"
	"github.com/pentabot/backend/internal/config"
	"github.com/pentabot/backend/internal/credits"
	"github.com/pentabot/backend/internal/db"
	"github.com/pentabot/backend/internal/logging"
	"github.com/pentabot/backend/internal/store/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const maxAttempts = 3

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("component", "worker"))

	if cfg.RabbitURL == "" {
		log.Fatal("RABBIT_URL is required for the worker")
	}

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer func() { _ = db.Close(gdb) }()
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := ai.NewRegistryFromConfig(cfg).Get(ctx, cfg.AIProvider, cfg.AIModel)
	if err != nil {
		log.Fatal("ai provider", zap.String("provider", cfg.AIProvider), zap.Error(err))
	}
	gen := ai.NewGenerator(provider, ai.GeneratorConfig{
		Timeout: cfg.GenerationTimeout,
		Retries: cfg.GenerationRetries,
	}, log)
	svc := chat.NewService(chat.NewRepo(gdb), credits.NewLedger(gdb), gen, chat.Options{
		HistoryMode:  chat.HistoryMode(cfg.ChatHistoryMode),
		HistoryLimit: cfg.ChatHistoryLimit,
	}, log)

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal("rabbit publisher", zap.Error(err))
	}
	defer func() { _ = pub.Close() }()

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, concurrency)
	if err != nil {
		log.Fatal("rabbit consumer", zap.Error(err))
	}
	defer func() { _ = consumer.Close() }()

	msgs, err := consumer.Deliveries("")
	if err != nil {
		log.Fatal("consume", zap.Error(err))
	}
	closed := consumer.Closed()

	log.Info("worker started", zap.String("queue", cfg.RabbitQueue), zap.Int("concurrency", concurrency))

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With(zap.Int("worker", workerID))
			for d := range jobs {
				handleDelivery(ctx, wlog, svc, pub, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case err := <-closed:
			log.Error("rabbit connection closed", zap.Error(err))
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Error("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

// handleDelivery acks finished jobs, parks infrastructure failures on the retry queue
// and dead-letters the message after maxAttempts.
func handleDelivery(ctx context.Context, log *zap.Logger, svc *chat.Service, pub *rabbitmq.Publisher, d amqp.Delivery) {
	m, err := rabbitmq.DecodeJobMessage(d.Body)
	if err != nil {
		log.Warn("bad message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	jlog := log.With(zap.String("job_id", m.JobID), zap.Int("attempt", m.Attempt))

	start := time.Now()
	status, err := svc.ProcessJob(ctx, m.JobID)
	switch {
	case err == nil:
		jlog.Info("job done", zap.String("status", string(status)), zap.Duration("cost", time.Since(start)))
		if ackErr := d.Ack(false); ackErr != nil {
			jlog.Error("ack failed", zap.Error(ackErr))
		}

	case errors.Is(err, apperr.ErrNotFound):
		jlog.Warn("job not found", zap.Error(err))
		_ = d.Nack(false, false)

	case m.Attempt+1 < maxAttempts:
		next := rabbitmq.JobMessage{JobID: m.JobID, Attempt: m.Attempt + 1}
		delay := time.Duration(1<<m.Attempt) * 2 * time.Second
		jlog.Warn("job failed, retrying", zap.Duration("delay", delay), zap.Error(err))
		if pubErr := pub.PublishRetry(context.WithoutCancel(ctx), next, delay); pubErr != nil {
			jlog.Error("publish retry", zap.Error(pubErr))
			_ = d.Nack(false, false)
			return
		}
		_ = d.Ack(false)

	default:
		jlog.Error("job failed, giving up", zap.Duration("cost", time.Since(start)), zap.Error(err))
		_ = d.Nack(false, false)
	}
}
