package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	DefaultCredits = 1250
)

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash *string   `gorm:"type:varchar(255)" json:"-"` // nil for accounts created through OAuth
	Role         string    `gorm:"type:varchar(16);not null;default:user" json:"role"`
	Credits      int       `gorm:"not null;default:1250" json:"credits"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
