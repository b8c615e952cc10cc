package handlers

import (
	"context"
	"time"

	"github.com/pentabot/backend/internal/chat"
	"github.com/pentabot/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JobPublisher hands queued job ids to the worker.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

// TokenRevoker remembers logged-out token ids until they expire.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

type Handler struct {
	DB      *gorm.DB
	Users   *users.Service
	ChatSvc *chat.Service
	// Jobs is nil when RabbitMQ is not configured; async sends then answer 503.
	Jobs JobPublisher
	// Tokens is nil when Redis is not configured; logout is then client-side only.
	Tokens TokenRevoker
	// OAuth is nil when Google sign-in is not configured; its routes then answer 503.
	OAuth   OAuthProvider
	Log     *zap.Logger
	Version string
}

func NewHandler(db *gorm.DB, usersSvc *users.Service, chatSvc *chat.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{DB: db, Users: usersSvc, ChatSvc: chatSvc, Log: log, Version: "1.0.0"}
}
