package chat

import (
	"context"
	"errors"
	"time"

	"github.com/pentabot/backend/internal/apperr"
	"gorm.io/gorm"
)

const (
	titleMaxRunes  = 50
	titleKeepRunes = 47
	titleEllipsis  = "…"

	defaultHistoryLimit = 10
)

// TitleFrom derives a chat title from its first message: verbatim up to 50
// characters, otherwise the first 47 followed by an ellipsis.
func TitleFrom(text string) string {
	r := []rune(text)
	if len(r) == 0 {
		return DefaultTitle
	}
	if len(r) <= titleMaxRunes {
		return text
	}
	return string(r[:titleKeepRunes]) + titleEllipsis
}

// Repo is the conversation repository. Every lookup is scoped to the owning user and
// reports a mismatch as not found.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// WithTx returns a repo bound to tx.
func (r *Repo) WithTx(tx *gorm.DB) *Repo {
	return &Repo{db: tx}
}

func (r *Repo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// ResolveOrCreate returns the user's chat chatID with up to historyLimit of its most
// recent completed messages (newest first). When chatID is nil or does not name a chat
// the user owns, a new chat titled from text is created.
func (r *Repo) ResolveOrCreate(ctx context.Context, userID uint64, chatID *uint64, text string, historyLimit int, now time.Time) (*Chat, bool, error) {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	if chatID != nil && *chatID != 0 {
		var c Chat
		err := r.db.WithContext(ctx).
			Preload("Messages", func(db *gorm.DB) *gorm.DB {
				return db.Where("orphaned = ?", false).Order("id DESC").Limit(historyLimit)
			}).
			Where("id = ? AND user_id = ?", *chatID, userID).
			First(&c).Error
		if err == nil {
			return &c, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperr.Storage(err)
		}
	}

	c := &Chat{
		UserID:        userID,
		Title:         TitleFrom(text),
		LastMessage:   text,
		LastMessageAt: now,
	}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, false, apperr.Storage(err)
	}
	return c, true, nil
}

func (r *Repo) AppendMessage(ctx context.Context, chatID uint64, sender Sender, text string) (*Message, error) {
	m := &Message{ChatID: chatID, Sender: sender, Text: text}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, apperr.Storage(err)
	}
	return m, nil
}

func (r *Repo) MarkOrphaned(ctx context.Context, messageID uint64) error {
	return apperr.Storage(r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ?", messageID).
		Update("orphaned", true).Error)
}

func (r *Repo) UpdateSummary(ctx context.Context, chatID uint64, lastMessage string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]any{
			"last_message":    lastMessage,
			"last_message_at": at,
		})
	if res.Error != nil {
		return apperr.Storage(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Chat not found")
	}
	return nil
}

// ListByUser returns the user's chat summaries, most recently active first.
func (r *Repo) ListByUser(ctx context.Context, userID uint64) ([]Summary, error) {
	var chats []Chat
	if err := r.db.WithContext(ctx).
		Select("id", "title", "last_message", "last_message_at").
		Where("user_id = ?", userID).
		Order("last_message_at DESC").
		Order("id DESC").
		Find(&chats).Error; err != nil {
		return nil, apperr.Storage(err)
	}

	out := make([]Summary, 0, len(chats))
	for _, c := range chats {
		out = append(out, Summary{ID: c.ID, Title: c.Title, LastMessage: c.LastMessage, LastMessageAt: c.LastMessageAt})
	}
	return out, nil
}

func (r *Repo) GetChat(ctx context.Context, chatID, userID uint64) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", chatID, userID).
		First(&c).Error; err != nil {
		return nil, apperr.FromGorm(err, "Chat not found")
	}
	return &c, nil
}

// GetMessages returns the chat's messages oldest first.
func (r *Repo) GetMessages(ctx context.Context, chatID, userID uint64) ([]Message, error) {
	if _, err := r.GetChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, apperr.Storage(err)
	}
	return msgs, nil
}

// DeleteChat removes the chat's messages and then the chat in one transaction.
func (r *Repo) DeleteChat(ctx context.Context, chatID, userID uint64) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := r.WithTx(tx).GetChat(ctx, chatID, userID); err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&Message{}).Error; err != nil {
			return apperr.Storage(err)
		}
		if err := tx.Delete(&Chat{}, chatID).Error; err != nil {
			return apperr.Storage(err)
		}
		return nil
	})
}
