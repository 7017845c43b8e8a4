package conversation

import "time"

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the persisted enum values.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

// Message is one persisted turn of a conversation. Messages are append-only;
// Timestamp is assigned when the turn is handed to the recorder, so ordering
// by timestamp reconstructs the sequence as the pipeline experienced it.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
