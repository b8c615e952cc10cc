package chat

import "time"

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

const DefaultTitle = "New Chat"

type Chat struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint64    `gorm:"not null;index:idx_chats_user_last,priority:1" json:"-"`
	Title         string    `gorm:"type:varchar(255);not null" json:"title"`
	LastMessage   string    `gorm:"type:text" json:"lastMessage"`
	LastMessageAt time.Time `gorm:"index:idx_chats_user_last,priority:2" json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	// Messages holds at most the recent window, newest first, when loaded by ResolveOrCreate.
	Messages []Message `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Chat) TableName() string { return "chats" }

// Message is append-only. Orphaned marks a user message whose exchange never completed.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID    uint64    `gorm:"not null;index" json:"chatId"`
	Sender    Sender    `gorm:"type:varchar(8);not null" json:"sender"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Orphaned  bool      `gorm:"not null;default:false" json:"orphaned"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Message) TableName() string { return "messages" }

// Summary is the projection used for chat listings.
type Summary struct {
	ID            uint64
	Title         string
	LastMessage   string
	LastMessageAt time.Time
}
