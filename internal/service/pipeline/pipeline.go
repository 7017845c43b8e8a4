// Package pipeline runs the per-conversation voice loop: caller audio in,
// live transcription, the reasoning turn, speech synthesis, and spoken audio
// back out, with every turn recorded off the hot path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/model/conversation"
	"github.com/trieuvy/aria/backend/internal/model/identity"
	"github.com/trieuvy/aria/backend/internal/service/agent"
	"github.com/trieuvy/aria/backend/internal/service/contextcache"
	"github.com/trieuvy/aria/backend/internal/service/history"
	"github.com/trieuvy/aria/backend/internal/service/transcribe"
)

// Transport carries audio between the caller and the pipeline. AudioFrames
// closes when the caller hangs up; PlayAudio pushes synthesized speech back.
type Transport interface {
	AudioFrames() <-chan []byte
	PlayAudio(chunk []byte) error
	// NotifyText surfaces captions to the client. Best effort; transports
	// without a caption channel may discard them.
	NotifyText(role conversation.Role, text string) error
	Close() error
}

// TranscriptStream is one live recognition connection.
type TranscriptStream interface {
	Transcripts() <-chan transcribe.Transcript
	SendAudio(chunk []byte) error
	Finish() error
	Close()
}

// StreamOpener dials a fresh transcription stream for a conversation.
type StreamOpener func(ctx context.Context, sessionID string) (TranscriptStream, error)

// Synthesizer renders reply text to audio chunks delivered through emit.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, emit func([]byte) error) error
}

// Responder produces the assistant side of a turn.
type Responder interface {
	OpeningContext(user identity.User, priorContext string) []*schema.Message
	Respond(ctx context.Context, history []*schema.Message, utterance string) (agent.Reply, []*schema.Message, error)
}

// Session is everything the orchestrator needs for one conversation.
type Session struct {
	ConversationID string
	User           identity.User
	Transport      Transport
}

// Orchestrator drives the stages of the voice loop for one session at a
// time. Turns are sequential: the next utterance is answered only after the
// previous reply has been spoken.
type Orchestrator struct {
	openStream StreamOpener
	synth      Synthesizer
	responder  Responder
	recorder   *history.Recorder
	cache      *contextcache.Cache
	log        zerolog.Logger
}

func NewOrchestrator(openStream StreamOpener, synth Synthesizer, responder Responder,
	recorder *history.Recorder, cache *contextcache.Cache, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		openStream: openStream,
		synth:      synth,
		responder:  responder,
		recorder:   recorder,
		cache:      cache,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Run blocks until the caller hangs up, the context is canceled, or a stage
// fails. Stage failures end the run; the conversation record stays open for
// an explicit end call.
func (o *Orchestrator) Run(ctx context.Context, session Session) error {
	log := o.log.With().Str("conversation_id", session.ConversationID).Logger()
	defer session.Transport.Close()

	// Stop the audio pump whenever the run ends, whatever the reason.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Seed the reasoning context before any audio flows.
	prior := o.cache.Get(ctx, session.User.ID)
	msgs := o.responder.OpeningContext(session.User, prior)

	stream, err := o.openStream(ctx, session.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to open transcription stream: %w", err)
	}
	defer stream.Close()

	// Pump caller audio into the recognizer until the caller hangs up.
	pumpDone := make(chan error, 1)
	go func() {
		pumpDone <- o.pumpAudio(ctx, session.Transport, stream)
	}()

	log.Info().Msg("pipeline started")

	var utterance strings.Builder
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-pumpDone:
			pumpDone = nil
			if err != nil {
				return err
			}
		case t, ok := <-stream.Transcripts():
			if !ok {
				// Recognizer closed; answer anything still buffered.
				if text := strings.TrimSpace(utterance.String()); text != "" {
					if err := o.runTurn(ctx, session, &msgs, text); err != nil {
						return err
					}
				}
				log.Info().Msg("pipeline finished")
				return nil
			}
			if !t.IsFinal {
				continue
			}
			if t.Text != "" {
				if utterance.Len() > 0 {
					utterance.WriteString(" ")
				}
				utterance.WriteString(t.Text)
			}
			if !t.SpeechFinal {
				continue
			}
			text := strings.TrimSpace(utterance.String())
			utterance.Reset()
			if text == "" {
				continue
			}
			if err := o.runTurn(ctx, session, &msgs, text); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) pumpAudio(ctx context.Context, transport Transport, stream TranscriptStream) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-transport.AudioFrames():
			if !ok {
				if err := stream.Finish(); err != nil {
					o.log.Warn().Err(err).Msg("failed to flush transcription stream")
				}
				return nil
			}
			if err := stream.SendAudio(frame); err != nil {
				return fmt.Errorf("failed to forward caller audio: %w", err)
			}
		}
	}
}

// runTurn answers one completed utterance. Persistence is handed to the
// recorder and never awaited.
func (o *Orchestrator) runTurn(ctx context.Context, session Session, msgs *[]*schema.Message, utterance string) error {
	log := o.log.With().Str("conversation_id", session.ConversationID).Logger()
	log.Debug().Int("chars", len(utterance)).Msg("utterance complete")

	o.recorder.Save(session.ConversationID, conversation.RoleUser, utterance, nil)
	if err := session.Transport.NotifyText(conversation.RoleUser, utterance); err != nil {
		log.Warn().Err(err).Msg("failed to send user caption")
	}

	reply, updated, err := o.responder.Respond(ctx, *msgs, utterance)
	if err != nil {
		return fmt.Errorf("reasoning turn failed: %w", err)
	}
	*msgs = updated

	var metadata map[string]any
	if len(reply.ToolsUsed) > 0 {
		metadata = map[string]any{"tools_used": reply.ToolsUsed}
	}
	o.recorder.Save(session.ConversationID, conversation.RoleAssistant, reply.Text, metadata)
	if err := session.Transport.NotifyText(conversation.RoleAssistant, reply.Text); err != nil {
		log.Warn().Err(err).Msg("failed to send assistant caption")
	}

	if err := o.synth.Synthesize(ctx, reply.Text, session.Transport.PlayAudio); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("speech synthesis failed: %w", err)
	}
	return nil
}
