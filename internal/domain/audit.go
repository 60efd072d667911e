package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID          int64                  `json:"id"`
	EventTime   time.Time              `json:"event_time"`
	ActorUserID *uuid.UUID             `json:"actor_user_id,omitempty"`
	ActorRole   string                 `json:"actor_role"`
	ThreadID    *uuid.UUID             `json:"thread_id,omitempty"`
	EventType   string                 `json:"event_type"`
	Payload     map[string]interface{} `json:"payload"`
}

const (
	EventTypeThreadCreatedAudit = "THREAD_CREATED"
	EventTypeMessagePosted      = "MESSAGE_POSTED"
	EventTypeThreadDeleted      = "THREAD_DELETED"
)
