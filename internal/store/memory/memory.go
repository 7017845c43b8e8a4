// Package memory provides an in-memory store implementation used by tests
// and local development without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trieuvy/aria/backend/internal/model/conversation"
	"github.com/trieuvy/aria/backend/internal/store"
)

// Store keeps all state behind a single mutex; good enough for the
// concurrency the tests exercise.
type Store struct {
	mu              sync.RWMutex
	conversations   map[string]conversation.Conversation
	messages        map[string][]conversation.Message
	interpretations []store.Interpretation
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		conversations: make(map[string]conversation.Conversation),
		messages:      make(map[string][]conversation.Message),
	}
}

func (s *Store) Conversations() store.Conversations     { return (*conversations)(s) }
func (s *Store) Messages() store.Messages               { return (*messagesStore)(s) }
func (s *Store) Interpretations() store.Interpretations { return (*interpretationsStore)(s) }

// SeedInterpretations loads knowledge-base entries for lookup.
func (s *Store) SeedInterpretations(entries []store.Interpretation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interpretations = append(s.interpretations, entries...)
}

type conversations Store

func (c *conversations) Create(_ context.Context, userID string) (conversation.Conversation, error) {
	conv := conversation.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: time.Now().UTC(),
	}
	c.mu.Lock()
	c.conversations[conv.ID] = conv
	c.mu.Unlock()
	return conv, nil
}

func (c *conversations) Get(_ context.Context, id string) (conversation.Conversation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.conversations[id]
	if !ok {
		return conversation.Conversation{}, store.ErrConversationNotFound
	}
	return conv, nil
}

func (c *conversations) SetRoom(_ context.Context, id, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[id]
	if !ok {
		return store.ErrConversationNotFound
	}
	if conv.RoomID != "" {
		return store.ErrRoomAlreadySet
	}
	conv.RoomID = roomID
	c.conversations[id] = conv
	return nil
}

func (c *conversations) End(_ context.Context, id string, p store.EndParams) (conversation.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[id]
	if !ok {
		return conversation.Conversation{}, store.ErrConversationNotFound
	}
	if conv.Ended() {
		return conversation.Conversation{}, store.ErrConversationEnded
	}
	endedAt := p.EndedAt.UTC()
	duration := int(endedAt.Sub(conv.StartedAt).Seconds())
	conv.EndedAt = &endedAt
	conv.DurationSeconds = &duration
	if p.MainTopic != nil {
		conv.MainTopic = p.MainTopic
	}
	if p.KeyInsights != nil {
		conv.KeyInsights = p.KeyInsights
	}
	if p.NumbersDiscussed != nil {
		conv.NumbersDiscussed = p.NumbersDiscussed
	}
	c.conversations[id] = conv
	return conv, nil
}

func (c *conversations) RecentCompleted(_ context.Context, userID string, limit int) ([]conversation.Summary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var completed []conversation.Conversation
	for _, conv := range c.conversations {
		if conv.UserID == userID && conv.Ended() {
			completed = append(completed, conv)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].StartedAt.After(completed[j].StartedAt)
	})
	if limit > 0 && len(completed) > limit {
		completed = completed[:limit]
	}

	out := make([]conversation.Summary, 0, len(completed))
	for _, conv := range completed {
		out = append(out, conversation.Summary{
			ID:               conv.ID,
			StartedAt:        conv.StartedAt,
			MainTopic:        deref(conv.MainTopic),
			KeyInsights:      deref(conv.KeyInsights),
			NumbersDiscussed: deref(conv.NumbersDiscussed),
		})
	}
	return out, nil
}

type messagesStore Store

func (m *messagesStore) Append(_ context.Context, msg conversation.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	m.mu.Unlock()
	return nil
}

func (m *messagesStore) List(_ context.Context, conversationID string) ([]conversation.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := make([]conversation.Message, len(m.messages[conversationID]))
	copy(msgs, m.messages[conversationID])
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

type interpretationsStore Store

func (i *interpretationsStore) Lookup(_ context.Context, numberType string, numberValue int, category string) ([]store.Interpretation, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []store.Interpretation
	for _, it := range i.interpretations {
		if it.NumberType != numberType || it.NumberValue != numberValue {
			continue
		}
		if category != "" && it.Category != category {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
