package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pentabot/backend/internal/common"
	"github.com/pentabot/backend/internal/httpapi/middleware"
	"github.com/pentabot/backend/internal/models"
	"github.com/pentabot/backend/internal/users"
)

type signupReq struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type signinReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userDTO struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Credits  int    `json:"credits"`
	Role     string `json:"role,omitempty"`
}

func toUserDTO(u *models.User, withRole bool) userDTO {
	out := userDTO{ID: u.ID, Username: u.Username, Email: u.Email, Credits: u.Credits}
	if withRole {
		out.Role = u.Role
	}
	return out
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "username, email and password required")
		return
	}

	sess, err := h.Users.Signup(c.Request.Context(), users.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(c, err, "Server error")
		return
	}
	common.OK(c, http.StatusOK, gin.H{"token": sess.Token, "user": toUserDTO(sess.User, false)})
}

func (h *Handler) Signin(c *gin.Context) {
	var req signinReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "Invalid credentials")
		return
	}

	sess, err := h.Users.Signin(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err, "Server error")
		return
	}
	common.OK(c, http.StatusOK, gin.H{"token": sess.Token, "user": toUserDTO(sess.User, false)})
}

func (h *Handler) Verify(c *gin.Context) {
	uid, ok := h.currentUser(c)
	if !ok {
		return
	}
	user, err := h.Users.Get(c.Request.Context(), uid)
	if err != nil {
		h.writeError(c, err, "Server error")
		return
	}
	common.OK(c, http.StatusOK, gin.H{"user": toUserDTO(user, true)})
}

func (h *Handler) Logout(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "No token, authorization denied")
		return
	}
	if h.Tokens != nil {
		if err := h.Tokens.RevokeToken(c.Request.Context(), claims.ID, claims.TTL(time.Now())); err != nil {
			h.writeError(c, err, "Failed to log out")
			return
		}
	}
	common.OK(c, http.StatusOK, gin.H{"msg": "Logged out"})
}
