package conversation

import "time"

// Conversation tracks one voice session between a user and the agent.
// RoomID is immutable once assigned; EndedAt and the derived summary fields
// are set exactly once when the session ends.
type Conversation struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	RoomID           string     `json:"roomId,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	DurationSeconds  *int       `json:"durationSeconds,omitempty"`
	MainTopic        *string    `json:"mainTopic,omitempty"`
	KeyInsights      *string    `json:"keyInsights,omitempty"`
	NumbersDiscussed *string    `json:"numbersDiscussed,omitempty"`
}

// Ended reports whether the conversation has been closed.
func (c Conversation) Ended() bool { return c.EndedAt != nil }

// Summary is the projection of a completed conversation consumed by the
// cross-session context cache.
type Summary struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"startedAt"`
	MainTopic        string    `json:"mainTopic"`
	KeyInsights      string    `json:"keyInsights"`
	NumbersDiscussed string    `json:"numbersDiscussed"`
}
