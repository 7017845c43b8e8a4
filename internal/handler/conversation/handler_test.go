package conversation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/trieuvy/aria/backend/internal/config"
	"github.com/trieuvy/aria/backend/internal/handler"
	"github.com/trieuvy/aria/backend/internal/model/identity"
	"github.com/trieuvy/aria/backend/internal/service/agent"
	"github.com/trieuvy/aria/backend/internal/service/contextcache"
	conversationService "github.com/trieuvy/aria/backend/internal/service/conversation"
	"github.com/trieuvy/aria/backend/internal/service/history"
	"github.com/trieuvy/aria/backend/internal/service/pipeline"
	"github.com/trieuvy/aria/backend/internal/service/room"
	"github.com/trieuvy/aria/backend/internal/service/transcribe"
	"github.com/trieuvy/aria/backend/internal/store/memory"
)

type noopStream struct{ out chan transcribe.Transcript }

func (s *noopStream) Transcripts() <-chan transcribe.Transcript { return s.out }
func (s *noopStream) SendAudio([]byte) error                    { return nil }
func (s *noopStream) Finish() error                             { close(s.out); return nil }
func (s *noopStream) Close()                                    {}

type noopSynth struct{}

func (noopSynth) Synthesize(context.Context, string, func([]byte) error) error { return nil }

type noopResponder struct{}

func (noopResponder) OpeningContext(identity.User, string) []*schema.Message {
	return []*schema.Message{schema.SystemMessage("persona")}
}

func (noopResponder) Respond(_ context.Context, msgs []*schema.Message, _ string) (agent.Reply, []*schema.Message, error) {
	return agent.Reply{Text: "ok"}, msgs, nil
}

func newAPI(t *testing.T) http.Handler {
	t.Helper()
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/rooms":
			var body struct {
				Name string `json:"name"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"url": "https://rooms.example/" + body.Name, "name": body.Name})
		case r.Method == http.MethodPost && r.URL.Path == "/meeting-tokens":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"token": "tok-abc"})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(provider.Close)

	st := memory.New()
	rooms := room.NewService(config.RoomConfig{APIKey: "k", BaseURL: provider.URL, Expiry: time.Hour}, zerolog.Nop())
	cache := contextcache.New(contextcache.NewMemoryKV(), st.Conversations(), 500, time.Minute, 5, zerolog.Nop())
	recorder := history.NewRecorder(st.Messages(), zerolog.Nop())
	t.Cleanup(recorder.Close)
	opener := func(context.Context, string) (pipeline.TranscriptStream, error) {
		return &noopStream{out: make(chan transcribe.Transcript)}, nil
	}
	orch := pipeline.NewOrchestrator(opener, noopSynth{}, noopResponder{}, recorder, cache, zerolog.Nop())
	svc := conversationService.NewService(st, rooms, orch, cache, zerolog.Nop())
	return handler.NewRouter(svc, zerolog.Nop())
}

func doJSON(t *testing.T, api http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Name", "Linh")
	}
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsPublic(t *testing.T) {
	api := newAPI(t)
	rec := doJSON(t, api, http.MethodGet, "/api/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStartRequiresIdentity(t *testing.T) {
	api := newAPI(t)
	rec := doJSON(t, api, http.MethodPost, "/api/conversations/start", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestConversationLifecycleOverHTTP(t *testing.T) {
	api := newAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/conversations/start", "u1", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body)
	}
	var started struct {
		ConversationID string `json:"conversationId"`
		Room           struct {
			JoinURL     string `json:"joinUrl"`
			RoomID      string `json:"roomId"`
			AccessToken string `json:"accessToken"`
		} `json:"room"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.ConversationID == "" || started.Room.AccessToken != "tok-abc" {
		t.Fatalf("start payload = %+v", started)
	}
	if !strings.Contains(started.Room.RoomID, started.ConversationID) {
		t.Errorf("room id %q not derived from conversation", started.Room.RoomID)
	}

	// transcripts are visible to the owner
	rec = doJSON(t, api, http.MethodGet, "/api/conversations/"+started.ConversationID+"/messages", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("messages status = %d", rec.Code)
	}

	// and hidden from everyone else
	rec = doJSON(t, api, http.MethodGet, "/api/conversations/"+started.ConversationID+"/messages", "u2", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-user messages status = %d, want 404", rec.Code)
	}

	topic := "Expression Number"
	rec = doJSON(t, api, http.MethodPost, "/api/conversations/"+started.ConversationID+"/end", "u1",
		map[string]*string{"mainTopic": &topic})
	if rec.Code != http.StatusOK {
		t.Fatalf("end status = %d: %s", rec.Code, rec.Body)
	}
	var ended struct {
		MainTopic *string `json:"mainTopic"`
		EndedAt   *string `json:"endedAt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ended); err != nil {
		t.Fatalf("decode end: %v", err)
	}
	if ended.MainTopic == nil || *ended.MainTopic != topic {
		t.Errorf("main topic = %v", ended.MainTopic)
	}

	// ending twice is a conflict
	rec = doJSON(t, api, http.MethodPost, "/api/conversations/"+started.ConversationID+"/end", "u1", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second end status = %d, want 409", rec.Code)
	}
}

func TestEndUnknownConversation(t *testing.T) {
	api := newAPI(t)
	rec := doJSON(t, api, http.MethodPost, "/api/conversations/nope/end", "u1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
