// Package agent drives the reasoning step of the voice pipeline: one chat
// model with the numerology tool set bound, plus the generate/dispatch loop
// that resolves tool calls before a spoken reply is produced.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/config"
	"github.com/trieuvy/aria/backend/internal/model/identity"
	"github.com/trieuvy/aria/backend/internal/service/tools"
)

// maxToolRounds bounds the tool loop within a single spoken turn.
const maxToolRounds = 5

// Reply is the outcome of one reasoning turn.
type Reply struct {
	Text      string
	ToolsUsed []string
}

// Service wraps the chat model and the tool dispatcher.
type Service struct {
	chatModel  model.ChatModel
	dispatcher *tools.Dispatcher
	log        zerolog.Logger
}

// NewService constructs the chat model from configuration and binds the
// numerology tool set to it.
func NewService(ctx context.Context, cfg config.AIConfig, dispatcher *tools.Dispatcher, log zerolog.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	if err := chatModel.BindTools(tools.Definitions()); err != nil {
		return nil, fmt.Errorf("bind numerology tools: %w", err)
	}
	return NewServiceWithModel(chatModel, dispatcher, log), nil
}

// NewServiceWithModel wires an already-built chat model; tests substitute a
// fake here.
func NewServiceWithModel(chatModel model.ChatModel, dispatcher *tools.Dispatcher, log zerolog.Logger) *Service {
	return &Service{
		chatModel:  chatModel,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "agent").Logger(),
	}
}

// OpeningContext seeds a fresh conversation: the persona instructions plus
// the cached cross-session summary when one exists.
func (s *Service) OpeningContext(user identity.User, priorContext string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(BuildSystemPrompt(user, priorContext)),
	}
}

// Respond appends the user utterance to the running context and runs the
// reasoning loop until the model produces text or the tool-round ceiling is
// hit. It returns the spoken reply and the updated context, which includes
// every intermediate tool call and result.
func (s *Service) Respond(ctx context.Context, history []*schema.Message, utterance string) (Reply, []*schema.Message, error) {
	msgs := append(history, schema.UserMessage(utterance))

	var toolsUsed []string
	for round := 0; round < maxToolRounds; round++ {
		resp, err := s.chatModel.Generate(ctx, msgs)
		if err != nil {
			return Reply{}, history, fmt.Errorf("reasoning call failed: %w", err)
		}
		msgs = append(msgs, resp)

		if len(resp.ToolCalls) == 0 {
			s.log.Debug().Int("rounds", round).Int("tools", len(toolsUsed)).Msg("turn resolved")
			return Reply{Text: resp.Content, ToolsUsed: toolsUsed}, msgs, nil
		}

		for _, call := range resp.ToolCalls {
			result := s.dispatcher.Dispatch(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
			msgs = append(msgs, schema.ToolMessage(string(result), call.ID))
			toolsUsed = append(toolsUsed, call.Function.Name)
		}
	}

	// Ceiling hit: answer with what we have instead of spinning further.
	s.log.Warn().Int("rounds", maxToolRounds).Msg("tool loop ceiling reached")
	resp, err := s.chatModel.Generate(ctx, append(msgs,
		schema.UserMessage("Hãy trả lời người dùng bằng những gì bạn đã tính được, không gọi thêm công cụ.")))
	if err != nil {
		return Reply{}, history, fmt.Errorf("reasoning call failed after tool ceiling: %w", err)
	}
	msgs = append(msgs, resp)
	return Reply{Text: resp.Content, ToolsUsed: toolsUsed}, msgs, nil
}
