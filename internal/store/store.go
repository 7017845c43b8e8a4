// Package store defines the durable storage boundary for conversations,
// messages and the numerology interpretation knowledge base. Implementations
// must be safe for concurrent use; each call operates on an independent
// statement so overlapping writes from rapid turns cannot block one another.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/trieuvy/aria/backend/internal/model/conversation"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationEnded    = errors.New("conversation already ended")
	ErrRoomAlreadySet       = errors.New("conversation already has a room")
)

// EndParams carries the end-of-session transition. Summary fields are
// optional; ended-at and duration are derived by the store.
type EndParams struct {
	EndedAt          time.Time
	MainTopic        *string
	KeyInsights      *string
	NumbersDiscussed *string
}

// Conversations manages conversation lifecycle records.
type Conversations interface {
	Create(ctx context.Context, userID string) (conversation.Conversation, error)
	Get(ctx context.Context, id string) (conversation.Conversation, error)
	// SetRoom assigns the room identifier once, right after session creation.
	// A second call returns ErrRoomAlreadySet.
	SetRoom(ctx context.Context, id, roomID string) error
	// End transitions the conversation to ended exactly once and computes
	// the whole-second duration. A second call returns ErrConversationEnded.
	End(ctx context.Context, id string, p EndParams) (conversation.Conversation, error)
	// RecentCompleted returns up to limit completed conversations for the
	// user, most recent first.
	RecentCompleted(ctx context.Context, userID string, limit int) ([]conversation.Summary, error)
}

// Messages is the append-only turn log.
type Messages interface {
	Append(ctx context.Context, msg conversation.Message) error
	// List returns all messages of a conversation in ascending timestamp order.
	List(ctx context.Context, conversationID string) ([]conversation.Message, error)
}

// Interpretation is one knowledge-base entry for a numerology number.
type Interpretation struct {
	NumberType  string `json:"numberType"`
	NumberValue int    `json:"numberValue"`
	Category    string `json:"category"`
	Content     string `json:"content"`
}

// Interpretations is the read-only keyed lookup over the knowledge base.
type Interpretations interface {
	// Lookup returns entries for the number type and value, optionally
	// filtered by category when category is non-empty.
	Lookup(ctx context.Context, numberType string, numberValue int, category string) ([]Interpretation, error)
}

// Store aggregates the storage interfaces behind a single injected dependency.
type Store interface {
	Conversations() Conversations
	Messages() Messages
	Interpretations() Interpretations
}
