package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Thread struct {
	ID             uuid.UUID   `json:"id"`
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
	CreatedAt      time.Time   `json:"created_at"`
	LastMessageAt  time.Time   `json:"last_message_at"`
}

// ThreadSummary annotates a thread with what the thread list needs:
// the most recent message (if any) and the caller's unread count.
type ThreadSummary struct {
	Thread      *Thread  `json:"thread"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

type ThreadDetail struct {
	Thread      *Thread    `json:"thread"`
	Messages    []*Message `json:"messages"`
	UnreadCount int        `json:"unread_count"`
}

// ParticipantKey canonicalizes a participant set into a stable string so
// set-equal threads resolve to the same key regardless of input order.
func ParticipantKey(ids []uuid.UUID) string {
	strs := make([]string, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		strs = append(strs, id.String())
	}
	sort.Strings(strs)
	return strings.Join(strs, ",")
}
