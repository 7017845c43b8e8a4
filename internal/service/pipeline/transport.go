package pipeline

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/model/conversation"
)

const (
	readDeadline = 60 * time.Second
	pingInterval = 54 * time.Second
)

// outgoingFrame is the envelope for everything sent to the client.
type outgoingFrame struct {
	Type      string `json:"type"`
	Role      string `json:"role,omitempty"`
	Text      string `json:"text,omitempty"`
	Audio     string `json:"audio,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// WSTransport adapts a browser WebSocket connection to the Transport
// interface. The client sends caller audio as binary frames and may send a
// JSON {"type":"stop"} frame to end its utterance stream while keeping the
// connection open for the final reply.
type WSTransport struct {
	conn   *websocket.Conn
	frames chan []byte
	log    zerolog.Logger

	writeMu    sync.Mutex
	framesOnce sync.Once
	closeOnce  sync.Once
	done       chan struct{}
}

func NewWSTransport(conn *websocket.Conn, log zerolog.Logger) *WSTransport {
	t := &WSTransport{
		conn:   conn,
		frames: make(chan []byte, 32),
		log:    log.With().Str("component", "transport").Logger(),
		done:   make(chan struct{}),
	}
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})
	go t.readLoop()
	go t.pingLoop()
	return t
}

func (t *WSTransport) AudioFrames() <-chan []byte { return t.frames }

// PlayAudio ships one synthesized chunk to the client, base64 wrapped in the
// JSON envelope.
func (t *WSTransport) PlayAudio(chunk []byte) error {
	return t.write(outgoingFrame{
		Type:      "audio",
		Audio:     base64.StdEncoding.EncodeToString(chunk),
		Timestamp: time.Now().Unix(),
	})
}

func (t *WSTransport) NotifyText(role conversation.Role, text string) error {
	return t.write(outgoingFrame{
		Type:      "caption",
		Role:      string(role),
		Text:      text,
		Timestamp: time.Now().Unix(),
	})
}

// Close tears the connection down. The frames channel stays open until
// readLoop returns; readLoop is its sole closer.
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

func (t *WSTransport) write(frame outgoingFrame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(frame)
}

func (t *WSTransport) closeFrames() {
	t.framesOnce.Do(func() { close(t.frames) })
}

func (t *WSTransport) readLoop() {
	defer t.closeFrames()
	stopped := false
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Warn().Err(err).Msg("client connection dropped")
			}
			return
		}
		t.conn.SetReadDeadline(time.Now().Add(readDeadline))

		switch mt {
		case websocket.BinaryMessage:
			if stopped {
				continue
			}
			select {
			case t.frames <- data:
			case <-t.done:
				return
			}
		case websocket.TextMessage:
			var ctrl struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &ctrl); err != nil {
				t.log.Warn().Err(err).Msg("invalid control frame")
				continue
			}
			if ctrl.Type == "stop" && !stopped {
				// No more caller audio; playback may still follow.
				stopped = true
				t.closeFrames()
			}
		}
	}
}

func (t *WSTransport) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
