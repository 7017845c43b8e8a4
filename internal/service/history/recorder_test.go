package history_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/model/conversation"
	"github.com/trieuvy/aria/backend/internal/service/history"
	"github.com/trieuvy/aria/backend/internal/store/memory"
)

func TestRecorderPersistsTurns(t *testing.T) {
	s := memory.New()
	conv, _ := s.Conversations().Create(context.Background(), "user-1")

	r := history.NewRecorder(s.Messages(), zerolog.Nop())
	r.Save(conv.ID, conversation.RoleUser, "What's my life path number?", nil)
	r.Save(conv.ID, conversation.RoleAssistant, "Tell me your birth date.", map[string]any{"tools": []string{}})
	r.Close()

	msgs, err := s.Messages().List(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("List err: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != conversation.RoleUser || msgs[1].Role != conversation.RoleAssistant {
		t.Errorf("roles out of order: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].Timestamp.IsZero() {
		t.Error("timestamp must be assigned at save time")
	}
}

type slowFailingMessages struct {
	mu    sync.Mutex
	calls int
}

func (f *slowFailingMessages) Append(context.Context, conversation.Message) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	return errors.New("db down")
}

func (f *slowFailingMessages) List(context.Context, string) ([]conversation.Message, error) {
	return nil, nil
}

func TestRecorderNeverBlocksOrPropagates(t *testing.T) {
	sink := &slowFailingMessages{}
	r := history.NewRecorder(sink, zerolog.Nop(), history.WithWorkers(1), history.WithQueueSize(2))
	defer r.Close()

	// Far more saves than the queue holds; every call must return promptly
	// even though the backend is slow and failing.
	start := time.Now()
	for i := 0; i < 50; i++ {
		r.Save("conv-1", conversation.RoleUser, "turn", nil)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Save blocked the caller for %s", elapsed)
	}
}

func TestRecorderSaveAfterCloseDrops(t *testing.T) {
	s := memory.New()
	r := history.NewRecorder(s.Messages(), zerolog.Nop())
	r.Close()

	// must not panic
	r.Save("conv-1", conversation.RoleUser, "late turn", nil)

	msgs, _ := s.Messages().List(context.Background(), "conv-1")
	if len(msgs) != 0 {
		t.Fatalf("expected no messages after close, got %d", len(msgs))
	}
}

func TestRecorderConcurrentSaves(t *testing.T) {
	s := memory.New()
	conv, _ := s.Conversations().Create(context.Background(), "user-1")
	r := history.NewRecorder(s.Messages(), zerolog.Nop(), history.WithQueueSize(1024))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				r.Save(conv.ID, conversation.RoleUser, "turn", nil)
			}
		}()
	}
	wg.Wait()
	r.Close()

	msgs, err := s.Messages().List(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("List err: %v", err)
	}
	if len(msgs) != 160 {
		t.Fatalf("got %d messages, want 160", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Fatalf("retrieval not in non-decreasing timestamp order at %d", i)
		}
	}
}
