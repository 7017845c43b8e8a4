package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/config"
)

var upgrader = websocket.Upgrader{}

// fakeLiveServer upgrades the connection, records the handshake, and replays
// a scripted set of result frames once it has received some audio.
func fakeLiveServer(t *testing.T, frames []string, gotAuth *string, gotQuery *map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotAuth = r.Header.Get("Authorization")
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		*gotQuery = q

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Wait for at least one audio frame before answering.
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				break
			}
			var ctrl struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(data, &ctrl) == nil && ctrl.Type == "CloseStream" {
				return
			}
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
}

func testConfig(serverURL string) config.TranscribeConfig {
	return config.TranscribeConfig{
		APIKey:         "dg-test-key",
		BaseURL:        "ws" + strings.TrimPrefix(serverURL, "http"),
		Model:          "nova-2",
		Language:       "vi",
		SampleRate:     16000,
		SilenceTimeout: 800 * time.Millisecond,
	}
}

func TestStreamDeliversTranscripts(t *testing.T) {
	frames := []string{
		`{"type":"Metadata","request_id":"r1"}`,
		`{"type":"Results","is_final":false,"speech_final":false,"channel":{"alternatives":[{"transcript":"số đường","confidence":0.62}]}}`,
		`{"type":"Results","is_final":true,"speech_final":false,"channel":{"alternatives":[{"transcript":"số đường đời","confidence":0.91}]}}`,
		`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"của tôi là gì","confidence":0.94}]}}`,
	}
	var gotAuth string
	gotQuery := map[string]string{}
	srv := fakeLiveServer(t, frames, &gotAuth, &gotQuery)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), zerolog.Nop())
	stream, err := client.OpenStream(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	if err := stream.SendAudio(make([]byte, 320)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	var got []Transcript
	timeout := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case tr, ok := <-stream.Transcripts():
			if !ok {
				t.Fatalf("stream closed after %d transcripts", len(got))
			}
			got = append(got, tr)
		case <-timeout:
			t.Fatalf("timed out after %d transcripts", len(got))
		}
	}

	if got[0].IsFinal || got[0].Text != "số đường" {
		t.Errorf("interim = %+v", got[0])
	}
	if !got[1].IsFinal || got[1].SpeechFinal {
		t.Errorf("final segment = %+v", got[1])
	}
	last := got[2]
	if !last.SpeechFinal || last.Text != "của tôi là gì" || last.Confidence != 0.94 {
		t.Errorf("utterance end = %+v", last)
	}

	if gotAuth != "Token dg-test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	for k, want := range map[string]string{
		"model":           "nova-2",
		"language":        "vi",
		"sample_rate":     "16000",
		"encoding":        "linear16",
		"interim_results": "true",
		"endpointing":     "800",
	} {
		if gotQuery[k] != want {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], want)
		}
	}
}

func TestStreamClosesOnServerError(t *testing.T) {
	frames := []string{
		`{"type":"Error","description":"bad audio","message":"DATA-0000"}`,
	}
	var gotAuth string
	gotQuery := map[string]string{}
	srv := fakeLiveServer(t, frames, &gotAuth, &gotQuery)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), zerolog.Nop())
	stream, err := client.OpenStream(context.Background(), "conv-err")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	if err := stream.SendAudio(make([]byte, 320)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case _, ok := <-stream.Transcripts():
		if ok {
			t.Error("expected no transcript before close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close on server error")
	}
}

func TestOpenStreamRejectsBadEndpoint(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	client := NewClient(cfg, zerolog.Nop())
	if _, err := client.OpenStream(context.Background(), "conv-x"); err == nil {
		t.Fatal("expected dial error")
	}
}
