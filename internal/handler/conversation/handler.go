// Package conversation exposes the consultation lifecycle over HTTP plus
// the WebSocket audio route that feeds the voice pipeline.
package conversation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/model/identity"
	conversationService "github.com/trieuvy/aria/backend/internal/service/conversation"
	"github.com/trieuvy/aria/backend/internal/service/pipeline"
	"github.com/trieuvy/aria/backend/internal/store"
	"github.com/trieuvy/aria/backend/pkg/utils"
)

// Handler serves the conversation routes.
type Handler struct {
	svc      *conversationService.Service
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func New(svc *conversationService.Service, log zerolog.Logger) *Handler {
	return &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log.With().Str("component", "handler").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/conversations/start", h.handleStart)
	r.Post("/conversations/{conversationID}/end", h.handleEnd)
	r.Get("/conversations/{conversationID}/messages", h.handleMessages)
	r.Get("/conversations/{conversationID}/audio", h.handleAudio)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	res, err := h.svc.Start(r.Context(), user)
	if err != nil {
		h.log.Error().Err(err).Msg("start conversation failed")
		utils.RespondError(w, http.StatusBadGateway, "failed to start conversation")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"conversationId": res.Conversation.ID,
		"room":           res.Room,
	})
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	conversationID := chi.URLParam(r, "conversationID")

	var payload struct {
		MainTopic        *string `json:"mainTopic"`
		KeyInsights      *string `json:"keyInsights"`
		NumbersDiscussed *string `json:"numbersDiscussed"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	ended, err := h.svc.End(r.Context(), user, conversationID, conversationService.EndSummary{
		MainTopic:        payload.MainTopic,
		KeyInsights:      payload.KeyInsights,
		NumbersDiscussed: payload.NumbersDiscussed,
	})
	if err != nil {
		h.respondServiceError(w, err, "end conversation failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, ended)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	conversationID := chi.URLParam(r, "conversationID")

	msgs, err := h.svc.Messages(r.Context(), user, conversationID)
	if err != nil {
		h.respondServiceError(w, err, "list messages failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"conversationId": conversationID,
		"messages":       msgs,
	})
}

// handleAudio upgrades to WebSocket and blocks for the life of the voice
// pipeline. Errors after the upgrade travel over the socket, not HTTP.
func (h *Handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	conversationID := chi.URLParam(r, "conversationID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	transport := pipeline.NewWSTransport(conn, h.log)
	if err := h.svc.RunPipeline(r.Context(), user, conversationID, transport); err != nil {
		h.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("pipeline ended with error")
	}
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, store.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, store.ErrConversationEnded):
		utils.RespondError(w, http.StatusConflict, "conversation already ended")
	case errors.Is(err, conversationService.ErrPipelineRunning):
		utils.RespondError(w, http.StatusConflict, "conversation already has an active audio stream")
	default:
		h.log.Error().Err(err).Msg(logMsg)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
