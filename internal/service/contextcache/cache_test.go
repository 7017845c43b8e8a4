package contextcache_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/model/conversation"
	"github.com/trieuvy/aria/backend/internal/service/contextcache"
	"github.com/trieuvy/aria/backend/internal/store"
	"github.com/trieuvy/aria/backend/internal/store/memory"
)

func endConversation(t *testing.T, s *memory.Store, userID, topic string) {
	t.Helper()
	ctx := context.Background()
	conv, err := s.Conversations().Create(ctx, userID)
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	_, err = s.Conversations().End(ctx, conv.ID, store.EndParams{
		EndedAt:   time.Now().UTC(),
		MainTopic: &topic,
	})
	if err != nil {
		t.Fatalf("End err: %v", err)
	}
}

func newCache(s *memory.Store, budget int) (*contextcache.Cache, *contextcache.MemoryKV) {
	kv := contextcache.NewMemoryKV()
	return contextcache.New(kv, s.Conversations(), budget, 30*time.Minute, 5, zerolog.Nop()), kv
}

func TestGetNoHistoryReturnsEmpty(t *testing.T) {
	cache, _ := newCache(memory.New(), 500)
	if got := cache.Get(context.Background(), "user-1"); got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
}

func TestGetComputesAndCaches(t *testing.T) {
	s := memory.New()
	endConversation(t, s, "user-1", "Life Path Number")
	cache, kv := newCache(s, 500)
	ctx := context.Background()

	got := cache.Get(ctx, "user-1")
	if !strings.Contains(got, "Life Path Number") {
		t.Fatalf("context %q missing topic", got)
	}

	if cached, ok, _ := kv.Get(ctx, "context:user-1"); !ok || cached != got {
		t.Fatal("context was not stored in the KV")
	}
}

func TestInvalidateForcesRecompute(t *testing.T) {
	s := memory.New()
	endConversation(t, s, "user-1", "Life Path Number")
	cache, _ := newCache(s, 500)
	ctx := context.Background()

	first := cache.Get(ctx, "user-1")
	endConversation(t, s, "user-1", "Personal Year Ahead")

	// still cached: the new topic must not appear yet
	if got := cache.Get(ctx, "user-1"); got != first {
		t.Fatalf("expected stale cached context before invalidation")
	}

	cache.Invalidate(ctx, "user-1")
	refreshed := cache.Get(ctx, "user-1")
	if !strings.Contains(refreshed, "Personal Year Ahead") {
		t.Fatalf("recomputed context %q missing new topic", refreshed)
	}
}

func TestFormatHistoryNeverExceedsBudget(t *testing.T) {
	base := time.Now().UTC()
	for _, count := range []int{0, 1, 5, 50, 1000} {
		summaries := make([]conversation.Summary, 0, count)
		for i := 0; i < count; i++ {
			summaries = append(summaries, conversation.Summary{
				ID:               fmt.Sprintf("conv-%d", i),
				StartedAt:        base.Add(-time.Duration(i) * time.Hour),
				MainTopic:        fmt.Sprintf("Topic number %d with some detail", i),
				KeyInsights:      "User resonated strongly with the reading",
				NumbersDiscussed: "3, 11, 22",
			})
		}
		out := contextcache.FormatHistory(summaries, 500)
		if got := contextcache.EstimateTokens(out); got > 500 {
			t.Fatalf("count=%d: formatted context is %d tokens, budget 500", count, got)
		}
	}
}

func TestFormatHistoryDropsOldestFirst(t *testing.T) {
	base := time.Now().UTC()
	newest := conversation.Summary{StartedAt: base, MainTopic: "Newest topic"}
	oldest := conversation.Summary{StartedAt: base.Add(-24 * time.Hour), MainTopic: strings.Repeat("old ", 100)}

	out := contextcache.FormatHistory([]conversation.Summary{newest, oldest}, 40)
	if !strings.Contains(out, "Newest topic") {
		t.Fatalf("output %q lost the newest summary", out)
	}
	if strings.Contains(out, "old old") {
		t.Fatalf("output %q kept the oversized oldest summary", out)
	}
}

func TestFormatHistorySingleOversizedFallsBack(t *testing.T) {
	huge := conversation.Summary{
		StartedAt: time.Now().UTC(),
		MainTopic: strings.Repeat("rất dài ", 500),
	}
	out := contextcache.FormatHistory([]conversation.Summary{huge, huge, huge}, 50)
	if !strings.Contains(out, "3 prior consultations") {
		t.Fatalf("expected one-line fallback, got %q", out)
	}
}

type failingConversations struct{ store.Conversations }

func (failingConversations) RecentCompleted(context.Context, string, int) ([]conversation.Summary, error) {
	return nil, errors.New("db unreachable")
}

func TestGetStoreErrorDegradesToEmpty(t *testing.T) {
	cache := contextcache.New(contextcache.NewMemoryKV(), failingConversations{}, 500, time.Minute, 5, zerolog.Nop())
	if got := cache.Get(context.Background(), "user-1"); got != "" {
		t.Fatalf("expected empty on store failure, got %q", got)
	}
}

type brokenKV struct{}

func (brokenKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("cache down")
}
func (brokenKV) Set(context.Context, string, string, time.Duration) error {
	return errors.New("cache down")
}
func (brokenKV) Delete(context.Context, string) error { return errors.New("cache down") }

func TestGetCacheErrorStillComputes(t *testing.T) {
	s := memory.New()
	endConversation(t, s, "user-1", "Expression Number")
	cache := contextcache.New(brokenKV{}, s.Conversations(), 500, time.Minute, 5, zerolog.Nop())

	got := cache.Get(context.Background(), "user-1")
	if !strings.Contains(got, "Expression Number") {
		t.Fatalf("expected recompute despite cache failure, got %q", got)
	}
	// Invalidate must swallow the failure too.
	cache.Invalidate(context.Background(), "user-1")
}
