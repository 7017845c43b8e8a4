// Package conversation coordinates the lifecycle of a consultation: the
// database record, the WebRTC room, the running voice pipeline, and the
// cross-session context cache.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	model "github.com/trieuvy/aria/backend/internal/model/conversation"
	"github.com/trieuvy/aria/backend/internal/model/identity"
	"github.com/trieuvy/aria/backend/internal/service/contextcache"
	"github.com/trieuvy/aria/backend/internal/service/pipeline"
	"github.com/trieuvy/aria/backend/internal/service/room"
	"github.com/trieuvy/aria/backend/internal/store"
)

// ErrPipelineRunning is returned when a second transport tries to attach to
// a conversation that already has a live pipeline.
var ErrPipelineRunning = errors.New("conversation already has a running pipeline")

// Clock returns the authoritative end time for a conversation. Injected so
// tests can pin durations.
type Clock func() time.Time

// StartResult is everything the client needs to join a consultation.
type StartResult struct {
	Conversation model.Conversation
	Room         room.Session
}

// EndSummary carries the optional reflection fields captured when a
// consultation closes.
type EndSummary struct {
	MainTopic        *string
	KeyInsights      *string
	NumbersDiscussed *string
}

// Service is the application-level API used by the HTTP handlers.
type Service struct {
	store store.Store
	rooms *room.Service
	orch  *pipeline.Orchestrator
	cache *contextcache.Cache
	now   Clock
	log   zerolog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewService(st store.Store, rooms *room.Service, orch *pipeline.Orchestrator,
	cache *contextcache.Cache, log zerolog.Logger) *Service {
	return &Service{
		store:   st,
		rooms:   rooms,
		orch:    orch,
		cache:   cache,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log.With().Str("component", "conversation").Logger(),
		running: make(map[string]context.CancelFunc),
	}
}

// Start creates the conversation record and its room session. The voice
// pipeline starts later, when the client's audio transport attaches.
func (s *Service) Start(ctx context.Context, user identity.User) (StartResult, error) {
	conv, err := s.store.Conversations().Create(ctx, user.ID)
	if err != nil {
		return StartResult{}, fmt.Errorf("failed to create conversation record: %w", err)
	}

	sess, err := s.rooms.CreateSession(ctx, conv.ID)
	if err != nil {
		// The open record is harmless: it never enters completed history.
		s.log.Error().Err(err).Str("conversation_id", conv.ID).Msg("room session creation failed")
		return StartResult{}, fmt.Errorf("failed to create room session: %w", err)
	}

	if err := s.store.Conversations().SetRoom(ctx, conv.ID, sess.RoomID); err != nil {
		s.rooms.DeleteSession(ctx, sess.RoomID)
		return StartResult{}, fmt.Errorf("failed to record room id: %w", err)
	}
	conv.RoomID = sess.RoomID

	s.log.Info().Str("conversation_id", conv.ID).Str("room_id", sess.RoomID).Msg("conversation started")
	return StartResult{Conversation: conv, Room: sess}, nil
}

// RunPipeline attaches an audio transport and blocks until the pipeline
// finishes. Ending the conversation cancels the run.
func (s *Service) RunPipeline(ctx context.Context, user identity.User, conversationID string, transport pipeline.Transport) error {
	conv, err := s.owned(ctx, user.ID, conversationID)
	if err != nil {
		transport.Close()
		return err
	}
	if conv.Ended() {
		transport.Close()
		return store.ErrConversationEnded
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if _, ok := s.running[conversationID]; ok {
		s.mu.Unlock()
		cancel()
		transport.Close()
		return ErrPipelineRunning
	}
	s.running[conversationID] = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.running, conversationID)
		s.mu.Unlock()
	}()

	session := pipeline.Session{
		ConversationID: conversationID,
		User:           user,
		Transport:      transport,
	}
	if err := s.orch.Run(runCtx, session); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Msg("pipeline run failed")
		return err
	}
	return nil
}

// End closes the consultation: one lifecycle transition, cache invalidation
// for the owner, best-effort room teardown, and pipeline cancellation.
func (s *Service) End(ctx context.Context, user identity.User, conversationID string, summary EndSummary) (model.Conversation, error) {
	if _, err := s.owned(ctx, user.ID, conversationID); err != nil {
		return model.Conversation{}, err
	}

	ended, err := s.store.Conversations().End(ctx, conversationID, store.EndParams{
		EndedAt:          s.now(),
		MainTopic:        summary.MainTopic,
		KeyInsights:      summary.KeyInsights,
		NumbersDiscussed: summary.NumbersDiscussed,
	})
	if err != nil {
		return model.Conversation{}, err
	}

	// The completed consultation changes the user's history, so the cached
	// cross-session context is stale from this moment.
	s.cache.Invalidate(ctx, user.ID)

	if ended.RoomID != "" {
		if ok := s.rooms.DeleteSession(ctx, ended.RoomID); !ok {
			s.log.Warn().Str("room_id", ended.RoomID).Msg("room cleanup incomplete")
		}
	}

	s.mu.Lock()
	if cancel, ok := s.running[conversationID]; ok {
		cancel()
	}
	s.mu.Unlock()

	s.log.Info().Str("conversation_id", conversationID).Msg("conversation ended")
	return ended, nil
}

// Messages returns the recorded transcript in spoken order.
func (s *Service) Messages(ctx context.Context, user identity.User, conversationID string) ([]model.Message, error) {
	if _, err := s.owned(ctx, user.ID, conversationID); err != nil {
		return nil, err
	}
	return s.store.Messages().List(ctx, conversationID)
}

// owned loads a conversation and hides other users' records behind the
// not-found error.
func (s *Service) owned(ctx context.Context, userID, conversationID string) (model.Conversation, error) {
	conv, err := s.store.Conversations().Get(ctx, conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	if conv.UserID != userID {
		return model.Conversation{}, store.ErrConversationNotFound
	}
	return conv, nil
}
