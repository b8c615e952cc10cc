package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pentabot/backend/internal/common"
	"go.uber.org/zap"
)

func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("request_id", GetRequestID(c)),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				common.Fail(c, http.StatusInternalServerError, "Server error")
			}
		}()
		c.Next()
	}
}
