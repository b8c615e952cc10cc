package users

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/pentabot/backend/internal/apperr"
	"github.com/pentabot/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxUsernameAttempts = 5

// SigninOAuth signs in the account owning email, creating it on first use.
// Created accounts have no password and get the same credits, organization and
// role as a regular signup.
func (s *Service) SigninOAuth(ctx context.Context, email, name string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.Validation("email required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		return s.issue(&user)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Storage(err)
	}

	base := usernameBase(name, email)
	for i := 0; i < maxUsernameAttempts; i++ {
		candidate := base
		if i > 0 {
			suffix, err := randomSuffix(4)
			if err != nil {
				return nil, apperr.Storage(err)
			}
			candidate = base + suffix
		}

		created := &models.User{
			Username: candidate,
			Email:    email,
			Role:     models.RoleUser,
			Credits:  s.cfg.DefaultCredits,
		}
		err := s.create(ctx, created)
		if err == nil {
			s.log.Info("user signed up via google", zap.Uint64("user_id", created.ID), zap.String("username", created.Username))
			return s.issue(created)
		}
		if !errors.Is(err, errUserExists) && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Storage(err)
		}

		// a concurrent sign-in may have created the account
		if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err == nil {
			return s.issue(&user)
		}
	}
	return nil, apperr.Storage(errors.New("failed to allocate username"))
}

// usernameBase derives a username from the display name, falling back to the
// local part of the email.
func usernameBase(name, email string) string {
	clean := func(s string) string {
		var b strings.Builder
		for _, r := range strings.ToLower(s) {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
				b.WriteRune(r)
			case r == ' ' || r == '-':
				b.WriteByte('_')
			}
		}
		out := strings.Trim(b.String(), "_.")
		if len(out) > 48 {
			out = out[:48]
		}
		return out
	}
	if base := clean(name); base != "" {
		return base
	}
	local, _, _ := strings.Cut(email, "@")
	if base := clean(local); base != "" {
		return base
	}
	return "user"
}

func randomSuffix(n int) (string, error) {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		out[i] = letters[idx.Int64()]
	}
	return string(out), nil
}
