// Package room manages the ephemeral WebRTC room that hosts one voice
// consultation. Rooms are created with a bounded lifetime and deletion is
// strictly best-effort: the provider expires rooms on its own, so a failed
// delete must never fail the enclosing operation.
package room

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/config"
)

// Session is the join information handed to the pipeline and the client.
type Session struct {
	JoinURL     string `json:"joinUrl"`
	RoomID      string `json:"roomId"`
	AccessToken string `json:"accessToken"`
}

// Service talks to the room provider's REST API.
type Service struct {
	client *resty.Client
	expiry time.Duration
	log    zerolog.Logger
}

// NewService builds a room service from configuration.
func NewService(cfg config.RoomConfig, log zerolog.Logger) *Service {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(10 * time.Second)

	return &Service{
		client: client,
		expiry: cfg.Expiry,
		log:    log.With().Str("component", "room").Logger(),
	}
}

type roomResponse struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// CreateSession provisions a room named after the conversation plus a
// room-scoped access token, so the provider API key never reaches the client.
func (s *Service) CreateSession(ctx context.Context, conversationID string) (Session, error) {
	name := "aria-" + conversationID
	payload := map[string]any{
		"name": name,
		"properties": map[string]any{
			"exp":                time.Now().Add(s.expiry).Unix(),
			"enable_chat":        false,
			"enable_screenshare": false,
		},
	}

	var created roomResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&created).
		Post("/rooms")
	if err != nil {
		return Session{}, fmt.Errorf("create room %q: %w", name, err)
	}
	if resp.IsError() {
		return Session{}, fmt.Errorf("create room %q: provider returned %d", name, resp.StatusCode())
	}

	token, err := s.createAccessToken(ctx, created.Name)
	if err != nil {
		return Session{}, err
	}

	s.log.Info().Str("room", created.Name).Msg("room created")
	return Session{
		JoinURL:     created.URL,
		RoomID:      created.Name,
		AccessToken: token,
	}, nil
}

func (s *Service) createAccessToken(ctx context.Context, roomID string) (string, error) {
	var out tokenResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"properties": map[string]any{"room_name": roomID},
		}).
		SetResult(&out).
		Post("/meeting-tokens")
	if err != nil {
		return "", fmt.Errorf("create access token for room %q: %w", roomID, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create access token for room %q: provider returned %d", roomID, resp.StatusCode())
	}
	return out.Token, nil
}

// DeleteSession removes the room. Idempotent and best-effort: a missing room
// counts as already cleaned up, and any provider or network failure is logged
// and reported as false without surfacing an error, because the room expires
// on its own regardless.
func (s *Service) DeleteSession(ctx context.Context, roomID string) bool {
	resp, err := s.client.R().
		SetContext(ctx).
		Delete("/rooms/" + roomID)
	if err != nil {
		s.log.Warn().Err(err).Str("room", roomID).Msg("room deletion failed")
		return false
	}
	if resp.StatusCode() == http.StatusNotFound {
		s.log.Warn().Str("room", roomID).Msg("room already deleted or expired")
		return false
	}
	if resp.IsError() {
		s.log.Warn().Int("status", resp.StatusCode()).Str("room", roomID).Msg("room deletion rejected")
		return false
	}
	s.log.Info().Str("room", roomID).Msg("room deleted")
	return true
}
