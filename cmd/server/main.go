package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pentabot/backend/internal/ai"
	"github.com/pentabot/backend/internal/auth"
	"github.com/pentabot/backend/internal/chat"
	"github.com/pentabot/backend/internal/config"
	"github.com/pentabot/backend/internal/credits"
	"github.com/pentabot/backend/internal/db"
	"github.com/pentabot/backend/internal/httpapi"
	"github.com/pentabot/backend/internal/httpapi/handlers"
	"github.com/pentabot/backend/internal/httpapi/middleware"
	"github.com/pentabot/backend/internal/logging"
	"github.com/pentabot/backend/internal/store/rabbitmq"
	"github.com/pentabot/backend/internal/store/redisstore"
	"github.com/pentabot/backend/internal/users"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Production() && cfg.JWTSecret == "dev-secret-change-me" {
		log.Fatal("JWT_SECRET must be set in production")
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

	reg := ai.NewRegistryFromConfig(cfg)
	provider, err := reg.Get(ctx, cfg.AIProvider, cfg.AIModel)
	if err != nil {
		log.Fatal("ai provider", zap.String("provider", cfg.AIProvider), zap.Error(err))
	}
	gen := ai.NewGenerator(provider, ai.GeneratorConfig{
		Timeout: cfg.GenerationTimeout,
		Retries: cfg.GenerationRetries,
	}, log)

	chatSvc := chat.NewService(chat.NewRepo(gdb), credits.NewLedger(gdb), gen, chat.Options{
		HistoryMode:  chat.HistoryMode(cfg.ChatHistoryMode),
		HistoryLimit: cfg.ChatHistoryLimit,
	}, log)
	usersSvc := users.NewService(gdb, users.Config{
		JWTSecret:      cfg.JWTSecret,
		JWTTTL:         cfg.JWTTTL,
		DefaultCredits: cfg.DefaultCredits,
	}, log)

	h := handlers.NewHandler(gdb, usersSvc, chatSvc, log)
	if cfg.GoogleClientID != "" {
		h.OAuth = auth.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)
	}

	var revoked middleware.Revocations
	if cfg.RedisAddr != "" {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer func() { _ = rds.Close() }()
		if err := rds.Ping(ctx); err != nil {
			log.Warn("redis unavailable, token revocation disabled", zap.Error(err))
		} else {
			h.Tokens = rds
			revoked = rds
		}
	}

	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Warn("rabbitmq unavailable, async sends disabled", zap.Error(err))
		} else {
			defer func() { _ = pub.Close() }()
			h.Jobs = pub
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewRouter(h, cfg, revoked, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server started",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("ai_provider", cfg.AIProvider),
			zap.String("history_mode", cfg.ChatHistoryMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
