package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/config"
)

// Transcript is a single recognition result emitted by the streaming
// service. Interim results carry the text recognized so far; IsFinal marks a
// stabilized segment and SpeechFinal marks the end of a spoken utterance
// detected by server-side endpointing.
type Transcript struct {
	Text        string
	IsFinal     bool
	SpeechFinal bool
	Confidence  float64
}

// serverMessage mirrors the provider's live-transcription frame.
type serverMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

// Client opens live transcription streams over WebSocket.
type Client struct {
	cfg    config.TranscribeConfig
	dialer *websocket.Dialer
	log    zerolog.Logger
}

func NewClient(cfg config.TranscribeConfig, log zerolog.Logger) *Client {
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		log: log.With().Str("component", "transcribe").Logger(),
	}
}

// keepAliveInterval keeps the provider from closing an idle stream while the
// user is thinking between utterances.
const keepAliveInterval = 8 * time.Second

// OpenStream dials the live endpoint and starts the reader and keepalive
// loops. The caller feeds raw PCM via SendAudio and consumes results from
// Transcripts until the channel closes.
func (c *Client) OpenStream(ctx context.Context, sessionID string) (*Stream, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid transcription endpoint: %w", err)
	}
	q := u.Query()
	q.Set("model", c.cfg.Model)
	q.Set("language", c.cfg.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(c.cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	q.Set("endpointing", strconv.FormatInt(c.cfg.SilenceTimeout.Milliseconds(), 10))
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Token "+c.cfg.APIKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transcription handshake failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to transcription service: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		conn:    conn,
		results: make(chan Transcript, 16),
		cancel:  cancel,
		log:     c.log.With().Str("session_id", sessionID).Logger(),
	}
	go s.readLoop(streamCtx)
	go s.keepAliveLoop(streamCtx)
	return s, nil
}

// Stream is one live transcription connection. SendAudio and Finish may be
// called from one goroutine while Transcripts is drained from another.
type Stream struct {
	conn    *websocket.Conn
	results chan Transcript
	cancel  context.CancelFunc
	log     zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Transcripts delivers recognition results in arrival order. The channel is
// closed when the server ends the stream or the connection drops.
func (s *Stream) Transcripts() <-chan Transcript { return s.results }

// SendAudio forwards one chunk of raw PCM audio.
func (s *Stream) SendAudio(chunk []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("failed to send audio chunk: %w", err)
	}
	return nil
}

// Finish tells the server no more audio is coming so it can flush any
// pending results before closing.
func (s *Stream) Finish() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(map[string]string{"type": "CloseStream"}); err != nil {
		return fmt.Errorf("failed to close transcription stream: %w", err)
	}
	return nil
}

// Close tears the connection down. Safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.conn.Close()
	})
}

func (s *Stream) readLoop(ctx context.Context) {
	defer close(s.results)
	for {
		var msg serverMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("transcription stream closed unexpectedly")
			}
			return
		}

		switch msg.Type {
		case "Results":
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			if alt.Transcript == "" && !msg.SpeechFinal {
				continue
			}
			t := Transcript{
				Text:        alt.Transcript,
				IsFinal:     msg.IsFinal,
				SpeechFinal: msg.SpeechFinal,
				Confidence:  alt.Confidence,
			}
			select {
			case s.results <- t:
			case <-ctx.Done():
				return
			}
		case "Error":
			s.log.Error().Str("description", msg.Description).Str("message", msg.Message).
				Msg("transcription service error")
			return
		default:
			// Metadata and other housekeeping frames.
		}
	}
}

func (s *Stream) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteJSON(map[string]string{"type": "KeepAlive"})
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
