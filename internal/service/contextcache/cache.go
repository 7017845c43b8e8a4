// Package contextcache produces the cross-session memory block injected into
// the agent's opening context. It is a cache-aside layer over completed
// conversation summaries: check the KV store, recompute from durable storage
// on miss, and store with a fixed TTL. Every failure degrades to an empty
// string so the reasoning step simply starts without history; nothing here
// may block or break the sub-second audio loop.
package contextcache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/model/conversation"
	"github.com/trieuvy/aria/backend/internal/store"
)

// KV is the minimal key-value contract the cache needs. The second return of
// Get reports whether the key existed.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache serves the per-user conversation context.
type Cache struct {
	kv            KV
	conversations store.Conversations
	tokenBudget   int
	ttl           time.Duration
	recentLimit   int
	log           zerolog.Logger
}

// New builds a context cache.
func New(kv KV, conversations store.Conversations, tokenBudget int, ttl time.Duration, recentLimit int, log zerolog.Logger) *Cache {
	return &Cache{
		kv:            kv,
		conversations: conversations,
		tokenBudget:   tokenBudget,
		ttl:           ttl,
		recentLimit:   recentLimit,
		log:           log.With().Str("component", "contextcache").Logger(),
	}
}

func cacheKey(userID string) string { return "context:" + userID }

// Get returns the formatted context block for the user, or "" when the user
// has no completed conversations or any backing store is unavailable.
func (c *Cache) Get(ctx context.Context, userID string) string {
	key := cacheKey(userID)

	cached, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("user", userID).Msg("cache read failed, recomputing")
	} else if ok && cached != "" {
		c.log.Debug().Str("user", userID).Msg("context cache hit")
		return cached
	}

	summaries, err := c.conversations.RecentCompleted(ctx, userID, c.recentLimit)
	if err != nil {
		c.log.Error().Err(err).Str("user", userID).Msg("loading conversation summaries failed")
		return ""
	}
	if len(summaries) == 0 {
		return ""
	}

	text := FormatHistory(summaries, c.tokenBudget)
	if text == "" {
		return ""
	}

	if err := c.kv.Set(ctx, key, text, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("user", userID).Msg("cache write failed")
	}
	c.log.Info().Str("user", userID).Int("conversations", len(summaries)).
		Int("chars", len(text)).Msg("context recomputed")
	return text
}

// Invalidate drops the cached context so the next session recomputes it.
// Called exactly once when a conversation ends; failures are logged and
// swallowed since the entry expires by TTL anyway.
func (c *Cache) Invalidate(ctx context.Context, userID string) {
	if err := c.kv.Delete(ctx, cacheKey(userID)); err != nil {
		c.log.Warn().Err(err).Str("user", userID).Msg("cache invalidation failed")
	}
}

// FormatHistory renders summaries (most recent first) into a natural-language
// block bounded by the token budget. Oldest entries are dropped first; when
// even the most recent summary alone is over budget the whole block degrades
// to a one-line count rather than truncating mid-sentence.
func FormatHistory(summaries []conversation.Summary, tokenBudget int) string {
	if len(summaries) == 0 {
		return ""
	}

	for keep := len(summaries); keep >= 1; keep-- {
		block := render(summaries[:keep])
		if EstimateTokens(block) <= tokenBudget {
			return block
		}
	}

	fallback := fmt.Sprintf("The user has %d prior consultations with you.", len(summaries))
	if EstimateTokens(fallback) > tokenBudget {
		return ""
	}
	return fallback
}

func render(summaries []conversation.Summary) string {
	var b strings.Builder
	b.WriteString("Previous conversations with this user:\n")
	for i, s := range summaries {
		topic := s.MainTopic
		if topic == "" {
			topic = "General discussion"
		}
		fmt.Fprintf(&b, "%d. %s: %s", i+1, s.StartedAt.Format("Jan 2"), topic)
		if s.KeyInsights != "" {
			fmt.Fprintf(&b, " — %s", s.KeyInsights)
		}
		if s.NumbersDiscussed != "" {
			fmt.Fprintf(&b, " (numbers: %s)", s.NumbersDiscussed)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// EstimateTokens approximates the token count of text. The usual ~4
// characters per token heuristic is good enough for budget enforcement.
func EstimateTokens(text string) int {
	runes := len([]rune(text))
	return (runes + 3) / 4
}
