package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pentabot/backend/internal/apperr"
	"github.com/pentabot/backend/internal/common"
	"github.com/pentabot/backend/internal/httpapi/middleware"
	"go.uber.org/zap"
)

// writeError maps the error taxonomy onto status codes. fallback is the message used
// for storage failures and unclassified errors.
func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, apperr.ErrInsufficientCredits):
		common.FailWith(c, http.StatusForbidden, apperr.Message(err, "Insufficient credits"), gin.H{"credits": 0})
	case errors.Is(err, apperr.ErrNotFound):
		common.Fail(c, http.StatusNotFound, apperr.Message(err, "Not found"))
	case errors.Is(err, apperr.ErrValidation):
		common.Fail(c, http.StatusBadRequest, apperr.Message(err, "Invalid request"))
	case errors.Is(err, apperr.ErrGeneration):
		h.Log.Warn("generation error", zap.String("request_id", middleware.GetRequestID(c)), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, apperr.Message(err, fallback))
	default:
		h.Log.Error(fallback, zap.String("request_id", middleware.GetRequestID(c)), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, fallback)
	}
}

func (h *Handler) currentUser(c *gin.Context) (uint64, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "No token, authorization denied")
	}
	return uid, ok
}
