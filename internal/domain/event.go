package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Socket frame types. Every frame is JSON with a `type` discriminator.
const (
	EventTypePing            = "ping"
	EventTypePong            = "pong"
	EventTypeThreadCreated   = "thread_created"
	EventTypeThreadUpdated   = "thread_updated"
	EventTypeMessageReceived = "message_received"
)

type ThreadCreatedEvent struct {
	Type   string  `json:"type"`
	Thread *Thread `json:"thread"`
}

type ThreadUpdatedEvent struct {
	Type          string    `json:"type"`
	ThreadID      uuid.UUID `json:"thread_id"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
}

type MessageReceivedEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message"`
}

type PongEvent struct {
	Type       string    `json:"type"`
	ServerTime time.Time `json:"server_time"`
}

// Builders marshal the push projections in one place so both delivery
// paths describe "what changed" identically.

func NewThreadCreatedEvent(thread *Thread) []byte {
	payload, _ := json.Marshal(ThreadCreatedEvent{Type: EventTypeThreadCreated, Thread: thread})
	return payload
}

func NewThreadUpdatedEvent(thread *Thread, lastMessage *Message) []byte {
	preview := lastMessage.Body
	if len(preview) > 120 {
		preview = preview[:120]
	}
	payload, _ := json.Marshal(ThreadUpdatedEvent{
		Type:          EventTypeThreadUpdated,
		ThreadID:      thread.ID,
		LastMessage:   preview,
		LastMessageAt: thread.LastMessageAt,
	})
	return payload
}

func NewMessageReceivedEvent(message *Message) []byte {
	payload, _ := json.Marshal(MessageReceivedEvent{Type: EventTypeMessageReceived, Message: message})
	return payload
}

func NewPongEvent(now time.Time) []byte {
	payload, _ := json.Marshal(PongEvent{Type: EventTypePong, ServerTime: now})
	return payload
}
