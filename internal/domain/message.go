package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is immutable once created: no edit or delete operation exists.
// IDs come from a single sequence, so ascending id order matches ascending
// creation order within a thread and doubles as the stream cursor.
type Message struct {
	ID        int64     `json:"id"`
	ThreadID  uuid.UUID `json:"thread_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
