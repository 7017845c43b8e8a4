// Package history persists conversation turns off the audio path. Saves are
// queued onto a bounded channel served by a fixed worker pool, so a slow or
// failed database round-trip can never add latency to a live turn. Failures
// are logged and swallowed; the transcript simply gains a gap.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/model/conversation"
	"github.com/trieuvy/aria/backend/internal/store"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
	saveTimeout      = 10 * time.Second
)

// Recorder is the fire-and-forget writer for conversation turns.
type Recorder struct {
	messages store.Messages
	queue    chan conversation.Message
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	log zerolog.Logger
}

// Option tunes a Recorder.
type Option func(*options)

type options struct {
	workers   int
	queueSize int
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithQueueSize sets the pending-save bound.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// NewRecorder starts the worker pool. Close must be called at shutdown.
func NewRecorder(messages store.Messages, log zerolog.Logger, opts ...Option) *Recorder {
	o := options{workers: defaultWorkers, queueSize: defaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Recorder{
		messages: messages,
		queue:    make(chan conversation.Message, o.queueSize),
		log:      log.With().Str("component", "history").Logger(),
	}
	for i := 0; i < o.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Save enqueues one turn for persistence and returns immediately. The
// timestamp is assigned here, at save time, so retrieval by timestamp
// reconstructs the order the pipeline experienced. When the queue is full
// the turn is dropped with a warning rather than blocking the caller.
func (r *Recorder) Save(conversationID string, role conversation.Role, content string, metadata map[string]any) {
	msg := conversation.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now().UTC(),
		Metadata:       metadata,
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.log.Warn().Str("conversation", conversationID).Msg("recorder closed, turn dropped")
		return
	}

	select {
	case r.queue <- msg:
	default:
		r.log.Warn().Str("conversation", conversationID).Msg("persistence queue full, turn dropped")
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for msg := range r.queue {
		// Each save gets its own context and runs on an independent
		// statement, so overlapping turns cannot block one another.
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := r.messages.Append(ctx, msg); err != nil {
			r.log.Error().Err(err).
				Str("conversation", msg.ConversationID).
				Str("role", string(msg.Role)).
				Msg("failed to persist turn")
		}
		cancel()
	}
}

// Close stops accepting new turns and drains the queue.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
