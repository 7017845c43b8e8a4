package synthesize

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/config"
)

// Client converts reply text to speech over the provider's streaming
// WebSocket API. One connection is opened per utterance.
type Client struct {
	cfg    config.SynthesizeConfig
	dialer *websocket.Dialer
	log    zerolog.Logger
}

func NewClient(cfg config.SynthesizeConfig, log zerolog.Logger) *Client {
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		log: log.With().Str("component", "synthesize").Logger(),
	}
}

// synthesisRequest is a single text frame on the stream-input protocol. The
// first frame carries voice settings; a frame with empty text flushes and
// closes the stream.
type synthesisRequest struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesisResponse struct {
	Audio   string `json:"audio"`
	IsFinal *bool  `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Synthesize streams the spoken rendering of text, invoking emit for each
// decoded audio chunk in order. It returns once the provider signals the
// final frame, or with the first error from the connection or from emit.
func (c *Client) Synthesize(ctx context.Context, text string, emit func([]byte) error) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	wsURL := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=pcm_16000",
		strings.TrimSuffix(c.cfg.BaseURL, "/"), c.cfg.VoiceID, c.cfg.Model)

	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("xi-api-key", c.cfg.APIKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("synthesis handshake failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to synthesis service: %w", err)
	}
	defer conn.Close()

	// Settings frame, the utterance, then the empty flush frame.
	frames := []synthesisRequest{
		{Text: " ", VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.8}},
		{Text: text + " "},
		{Text: ""},
	}
	for _, f := range frames {
		if err := conn.WriteJSON(f); err != nil {
			return fmt.Errorf("failed to send synthesis request: %w", err)
		}
	}

	// Read concurrently so a context cancel can interrupt a blocked read.
	done := make(chan error, 1)
	go func() {
		done <- c.receiveAudio(conn, emit)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		conn.Close()
		<-done
		return ctx.Err()
	}
}

func (c *Client) receiveAudio(conn *websocket.Conn, emit func([]byte) error) error {
	for {
		var msg synthesisResponse
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read synthesis response: %w", err)
		}

		if msg.Error != "" {
			return fmt.Errorf("synthesis error %s: %s", msg.Error, msg.Message)
		}

		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return fmt.Errorf("failed to decode audio chunk: %w", err)
			}
			if err := emit(chunk); err != nil {
				return fmt.Errorf("failed to deliver audio chunk: %w", err)
			}
		}

		if msg.IsFinal != nil && *msg.IsFinal {
			return nil
		}
	}
}
