package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pentabot/backend/internal/auth"
	"github.com/pentabot/backend/internal/common"
	"go.uber.org/zap"
)

const (
	UserIDKey = "user_id"
	ClaimsKey = "claims"
)

// Revocations looks up logged-out token ids.
type Revocations interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthRequired validates the bearer token and stores the user id and claims on the
// context. revoked may be nil, in which case logout is not enforced.
func AuthRequired(secret string, revoked Revocations, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			common.Fail(c, http.StatusUnauthorized, "No token, authorization denied")
			return
		}

		claims, err := auth.ParseJWT(strings.TrimSpace(token), secret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, "Token is not valid")
			return
		}

		if revoked != nil && claims.ID != "" {
			isRevoked, err := revoked.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				// fail open on lookup errors
				log.Warn("revocation lookup failed", zap.Error(err))
			} else if isRevoked {
				common.Fail(c, http.StatusUnauthorized, "Token has been revoked")
				return
			}
		}

		uid, _ := claims.UserID()
		c.Set(UserIDKey, uid)
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func Claims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
