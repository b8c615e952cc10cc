// Package credits owns the per-user message balance.
package credits

import (
	"context"

	"github.com/pentabot/backend/internal/apperr"
	"github.com/pentabot/backend/internal/models"
	"gorm.io/gorm"
)

// Reservation is the outcome of a balance check. OK is false when nothing is left.
type Reservation struct {
	OK        bool
	Remaining int
}

type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithTx returns a ledger bound to tx.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx}
}

func (l *Ledger) Balance(ctx context.Context, userID uint64) (int, error) {
	var u models.User
	if err := l.db.WithContext(ctx).Select("id", "credits").First(&u, userID).Error; err != nil {
		return 0, apperr.FromGorm(err, "User not found")
	}
	return u.Credits, nil
}

// CheckAndReserve reports whether userID may start an exchange. A balance of zero or
// less is insufficient and reported with Remaining 0.
func (l *Ledger) CheckAndReserve(ctx context.Context, userID uint64) (Reservation, error) {
	bal, err := l.Balance(ctx, userID)
	if err != nil {
		return Reservation{}, err
	}
	if bal <= 0 {
		return Reservation{OK: false, Remaining: 0}, nil
	}
	return Reservation{OK: true, Remaining: bal}, nil
}

// Decrement takes exactly one credit with a conditional update, so the balance never
// drops below zero. It returns the new balance, or ErrInsufficientCredits when the
// balance was already exhausted.
func (l *Ledger) Decrement(ctx context.Context, userID uint64) (int, error) {
	res := l.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND credits > 0", userID).
		UpdateColumn("credits", gorm.Expr("credits - ?", 1))
	if res.Error != nil {
		return 0, apperr.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := l.Balance(ctx, userID); err != nil {
			return 0, err
		}
		return 0, apperr.InsufficientCredits()
	}
	return l.Balance(ctx, userID)
}
