package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pentabot/backend/internal/apperr"
	"github.com/pentabot/backend/internal/auth"
	"github.com/pentabot/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Config struct {
	JWTSecret      string
	JWTTTL         time.Duration
	DefaultCredits int
}

// Service owns account creation and sign-in.
type Service struct {
	db  *gorm.DB
	cfg Config
	log *zap.Logger
}

func NewService(db *gorm.DB, cfg Config, log *zap.Logger) *Service {
	if cfg.JWTTTL <= 0 {
		cfg.JWTTTL = 7 * 24 * time.Hour
	}
	if cfg.DefaultCredits <= 0 {
		cfg.DefaultCredits = models.DefaultCredits
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, cfg: cfg, log: log}
}

type SignupInput struct {
	Username string
	Email    string
	Password string
}

// Session is a signed token plus the user it was issued for.
type Session struct {
	Token string
	User  *models.User
}

// Signup creates the user, its default organization and the admin role in one
// transaction, then issues a token.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, apperr.Validation("username, email and password required")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Storage(err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: &hash,
		Role:         models.RoleUser,
		Credits:      s.cfg.DefaultCredits,
	}
	err = s.create(ctx, user)
	if errors.Is(err, errUserExists) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperr.Validation("User exists")
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}

	s.log.Info("user signed up", zap.Uint64("user_id", user.ID), zap.String("username", user.Username))
	return s.issue(user)
}

// create inserts user with its default organization and promotes it to admin.
func (s *Service) create(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		if err := tx.Model(&models.User{}).
			Where("username = ? OR email = ?", user.Username, user.Email).
			Count(&cnt).Error; err != nil {
			return err
		}
		if cnt > 0 {
			return errUserExists
		}

		if err := tx.Create(user).Error; err != nil {
			return err
		}
		org := &models.Organization{Name: models.DefaultOrganizationName, OwnerID: user.ID}
		if err := tx.Create(org).Error; err != nil {
			return err
		}
		if err := tx.Model(user).Update("role", models.RoleAdmin).Error; err != nil {
			return err
		}
		user.Role = models.RoleAdmin
		return nil
	})
}

var errUserExists = errors.New("user exists")

func (s *Service) Signin(ctx context.Context, username, password string) (*Session, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Validation("Invalid credentials")
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, apperr.Validation("Invalid credentials")
	}
	return s.issue(&user)
}

func (s *Service) Get(ctx context.Context, userID uint64) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, apperr.FromGorm(err, "User not found")
	}
	return &user, nil
}

func (s *Service) issue(user *models.User) (*Session, error) {
	token, err := auth.SignJWT(user.ID, s.cfg.JWTSecret, s.cfg.JWTTTL)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return &Session{Token: token, User: user}, nil
}
