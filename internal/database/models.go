package database

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message roles in a conversation
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage is one entry of a user's assistant conversation log
type ConversationMessage struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
