package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReadReceipt is a last-write-wins cell per (thread, user): it points at
// the newest message the user has acknowledged.
type ReadReceipt struct {
	ThreadID  uuid.UUID `json:"thread_id"`
	UserID    uuid.UUID `json:"user_id"`
	MessageID int64     `json:"message_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TypingIndicator is advisory only. There is no guaranteed "stop typing"
// push, so consumers must treat an indicator older than the staleness
// window as expired regardless of the stored boolean.
type TypingIndicator struct {
	ThreadID  uuid.UUID `json:"thread_id"`
	UserID    uuid.UUID `json:"user_id"`
	IsTyping  bool      `json:"is_typing"`
	UpdatedAt time.Time `json:"updated_at"`
}
