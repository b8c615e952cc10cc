package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pentabot/backend/internal/common"
	"github.com/pentabot/backend/internal/config"
	"github.com/pentabot/backend/internal/httpapi/handlers"
	"github.com/pentabot/backend/internal/httpapi/middleware"
	"go.uber.org/zap"
)

// NewRouter wires the public routes. revoked may be nil when Redis is not configured.
func NewRouter(h *handlers.Handler, cfg config.Config, revoked middleware.Revocations, log *zap.Logger) *gin.Engine {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(cors.New(corsConfig(cfg.FrontendOrigins)))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	authRequired := middleware.AuthRequired(cfg.JWTSecret, revoked, log)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", h.Signup)
	authGroup.POST("/signin", h.Signin)
	authGroup.GET("/verify", authRequired, h.Verify)
	authGroup.POST("/logout", authRequired, h.Logout)
	authGroup.GET("/google", h.GoogleLogin)
	authGroup.GET("/google/callback", h.GoogleCallback)

	chatGroup := api.Group("/chat")
	chatGroup.Use(authRequired)
	chatGroup.POST("/message", h.SendMessage)
	chatGroup.POST("/message/async", h.SendMessageAsync)
	chatGroup.GET("/jobs/:jobId", h.GetJob)
	chatGroup.GET("/chats", h.ListChats)
	chatGroup.GET("/chats/:chatId", h.GetChat)
	chatGroup.DELETE("/chats/:chatId", h.DeleteChat)
	chatGroup.GET("/credits", h.GetCredits)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	cfg.AllowMethods = []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key", middleware.RequestIDHeader}
	cfg.ExposeHeaders = []string{"Content-Length", middleware.RequestIDHeader}
	return cfg
}
