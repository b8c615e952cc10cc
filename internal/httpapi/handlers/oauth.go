package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pentabot/backend/internal/auth"
	"github.com/pentabot/backend/internal/common"
	"github.com/pentabot/backend/internal/httpapi/middleware"
	"go.uber.org/zap"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthVerifierCookie = "oauth_verifier"
	oauthCookiePath     = "/api/auth/google"
	oauthCookieMaxAge   = 600
)

// OAuthProvider runs the authorization code flow of an external identity provider.
type OAuthProvider interface {
	NewVerifier() string
	AuthCodeURL(state, verifier string) string
	Profile(ctx context.Context, code, verifier string) (*auth.GoogleProfile, error)
}

// GoogleLogin redirects to Google's consent screen.
func (h *Handler) GoogleLogin(c *gin.Context) {
	if h.OAuth == nil {
		common.Fail(c, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}
	state := uuid.NewString()
	verifier := h.OAuth.NewVerifier()
	setOAuthCookie(c, oauthStateCookie, state, oauthCookieMaxAge)
	setOAuthCookie(c, oauthVerifierCookie, verifier, oauthCookieMaxAge)
	c.Redirect(http.StatusFound, h.OAuth.AuthCodeURL(state, verifier))
}

// GoogleCallback completes the flow and answers like signin.
func (h *Handler) GoogleCallback(c *gin.Context) {
	if h.OAuth == nil {
		common.Fail(c, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}

	state, err := c.Cookie(oauthStateCookie)
	if err != nil || state == "" || c.Query("state") != state {
		common.Fail(c, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	verifier, _ := c.Cookie(oauthVerifierCookie)
	setOAuthCookie(c, oauthStateCookie, "", -1)
	setOAuthCookie(c, oauthVerifierCookie, "", -1)

	code := c.Query("code")
	if c.Query("error") != "" || code == "" {
		common.Fail(c, http.StatusUnauthorized, "Google authentication failed")
		return
	}

	profile, err := h.OAuth.Profile(c.Request.Context(), code, verifier)
	if err != nil {
		h.Log.Warn("google sign-in failed", zap.String("request_id", middleware.GetRequestID(c)), zap.Error(err))
		common.Fail(c, http.StatusUnauthorized, "Google authentication failed")
		return
	}

	sess, err := h.Users.SigninOAuth(c.Request.Context(), profile.Email, profile.Name)
	if err != nil {
		h.writeError(c, err, "Server error")
		return
	}
	common.OK(c, http.StatusOK, gin.H{"token": sess.Token, "user": toUserDTO(sess.User, false)})
}

func setOAuthCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, oauthCookiePath, "", c.Request.TLS != nil, true)
}
