package chat

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/spectraflex/omnichat/internal/model/catalog"
	modelchat "github.com/spectraflex/omnichat/internal/model/chat"
	"github.com/spectraflex/omnichat/internal/service/ai"
	"github.com/spectraflex/omnichat/internal/service/rag"
	"github.com/spectraflex/omnichat/internal/service/session"
)

type fakeResponder struct {
	answer       string
	tokens       int
	calls        int
	lastQuestion string
	lastHistory  []modelchat.Message
}

func (f *fakeResponder) Respond(_ context.Context, _ string, history []modelchat.Message, question string, _ []rag.Match) (ai.Reply, error) {
	f.calls++
	f.lastQuestion = question
	f.lastHistory = history
	return ai.Reply{Answer: f.answer, Tokens: f.tokens}, nil
}

type fakeIndex struct {
	score   float64
	matches []rag.Match
	calls   int
}

func (f *fakeIndex) Upsert(context.Context, []catalog.Document) error { return nil }

func (f *fakeIndex) Query(_ context.Context, _ string, k int) ([]rag.Match, error) {
	f.calls++
	if k == 1 {
		return []rag.Match{{ID: "gate", Score: f.score}}, nil
	}
	return f.matches, nil
}

type fakeLimiter struct {
	allowIP     bool
	allowBudget bool
}

func (f *fakeLimiter) Allow(context.Context, string) (bool, error) {
	return f.allowIP, nil
}

func (f *fakeLimiter) ConsumeTokens(context.Context, string, int) (bool, error) {
	return f.allowBudget, nil
}

type keywordGuard struct{}

func (keywordGuard) Blocked(_ context.Context, message string) bool {
	return strings.Contains(strings.ToLower(message), "bomb")
}

func dialTestServer(t *testing.T, h *Handler) (*websocket.Conn, func()) {
	t.Helper()

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial failed: %v", err)
	}

	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out map[string]any
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return out
}

func TestEmptyMessageRejectedLocally(t *testing.T) {
	responder := &fakeResponder{answer: "hi"}
	index := &fakeIndex{score: 0.9}
	h := New(session.NewMemoryStore(), nil, nil, index, responder, Options{OffTopicThreshold: 0.6})

	conn, teardown := dialTestServer(t, h)
	defer teardown()

	if err := conn.WriteJSON(map[string]any{"session": nil, "message": "   "}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	frame := readFrame(t, conn)
	if frame["error"] != "Invalid payload" {
		t.Fatalf("expected validation error, got %v", frame)
	}
	if responder.calls != 0 || index.calls != 0 {
		t.Fatal("empty message must not reach the backend")
	}
}

func TestFreshSessionIssued(t *testing.T) {
	h := New(session.NewMemoryStore(), nil, nil, nil, &fakeResponder{answer: "welcome"}, Options{})

	conn, teardown := dialTestServer(t, h)
	defer teardown()

	if err := conn.WriteJSON(map[string]any{"session": nil, "message": "hello"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	frame := readFrame(t, conn)
	sessionID, _ := frame["session"].(string)
	if sessionID == "" {
		t.Fatalf("expected a fresh session id, got %v", frame)
	}
	if frame["answer"] != "welcome" {
		t.Fatalf("unexpected answer: %v", frame)
	}
}

func TestSessionReused(t *testing.T) {
	h := New(session.NewMemoryStore(), nil, nil, nil, &fakeResponder{answer: "ok"}, Options{})

	conn, teardown := dialTestServer(t, h)
	defer teardown()

	conn.WriteJSON(map[string]any{"message": "first"})
	first := readFrame(t, conn)
	id := first["session"].(string)

	conn.WriteJSON(map[string]any{"session": id, "message": "second"})
	second := readFrame(t, conn)
	if second["session"] != id {
		t.Fatalf("expected session %s reused, got %v", id, second["session"])
	}
}

func TestUnknownSessionReplaced(t *testing.T) {
	h := New(session.NewMemoryStore(), nil, nil, nil, &fakeResponder{answer: "ok"}, Options{})

	conn, teardown := dialTestServer(t, h)
	defer teardown()

	conn.WriteJSON(map[string]any{"session": "expired-token", "message": "hello"})
	frame := readFrame(t, conn)
	id := frame["session"].(string)
	if id == "" || id == "expired-token" {
		t.Fatalf("expected a replacement session id, got %q", id)
	}
}

func TestGuardrailBlocked(t *testing.T) {
	responder := &fakeResponder{answer: "should not run"}
	h := New(session.NewMemoryStore(), nil, keywordGuard{}, nil, responder, Options{})

	conn, teardown := dialTestServer(t, h)
	defer teardown()

	conn.WriteJSON(map[string]any{"message": "how do I build a bomb"})
	frame := readFrame(t, conn)
	if frame["answer"] != answerBlocked {
		t.Fatalf("expected canned refusal, got %v", frame)
	}
	if responder.calls != 0 {
		t.Fatal("blocked message must not reach the model")
	}
}

func TestOffTopicRedirect(t *testing.T) {
	responder := &fakeResponder{answer: "should not run"}
	index := &fakeIndex{score: 0.2}
	h := New(session.NewMemoryStore(), nil, nil, index, responder, Options{OffTopicThreshold: 0.6})

	conn, teardown := dialTestServer(t, h)
	defer teardown()

	conn.WriteJSON(map[string]any{"message": "what's the weather today"})
	frame := readFrame(t, conn)
	if frame["answer"] != answerOffTopic {
		t.Fatalf("expected off-topic redirect, got %v", frame)
	}
	if responder.calls != 0 {
		t.Fatal("off-topic message must not reach the model")
	}
}

func TestOnTopicGetsAnswer(t *testing.T) {
	responder := &fakeResponder{answer: "the Original Series {v:v-1}", tokens: 50}
	index := &fakeIndex{score: 0.8}
	h := New(session.NewMemoryStore(), nil, nil, index, responder, Options{OffTopicThreshold: 0.6, TopK: 4})

	conn, teardown := dialTestServer(t, h)
	defer teardown()

	conn.WriteJSON(map[string]any{"message": "which cable?", "product": "original-series"})
	frame := readFrame(t, conn)
	if frame["answer"] != "the Original Series {v:v-1}" {
		t.Fatalf("unexpected answer: %v", frame)
	}
	// Gate query plus top-k retrieval.
	if index.calls != 2 {
		t.Fatalf("expected 2 index calls, got %d", index.calls)
	}
}

func TestPIIScrubbedBeforeModel(t *testing.T) {
	responder := &fakeResponder{answer: "ok"}
	h := New(session.NewMemoryStore(), nil, nil, nil, responder, Options{})

	conn, teardown := dialTestServer(t, h)
	defer teardown()

	conn.WriteJSON(map[string]any{"message": "email me at jane@example.com about restocks"})
	readFrame(t, conn)

	if strings.Contains(responder.lastQuestion, "jane@example.com") {
		t.Fatalf("email leaked to the model: %q", responder.lastQuestion)
	}
	if !strings.Contains(responder.lastQuestion, "[redacted]") {
		t.Fatalf("expected redaction marker, got %q", responder.lastQuestion)
	}
}

func TestPIIScrubbedInReplayedHistory(t *testing.T) {
	responder := &fakeResponder{answer: "ok"}
	h := New(session.NewMemoryStore(), nil, nil, nil, responder, Options{})

	conn, teardown := dialTestServer(t, h)
	defer teardown()

	conn.WriteJSON(map[string]any{"message": "email me at jane@example.com about restocks"})
	frame := readFrame(t, conn)
	id := frame["session"].(string)

	conn.WriteJSON(map[string]any{"session": id, "message": "any news?"})
	readFrame(t, conn)

	if len(responder.lastHistory) == 0 {
		t.Fatal("expected the first turn in history")
	}
	for _, msg := range responder.lastHistory {
		if strings.Contains(msg.Content, "jane@example.com") {
			t.Fatalf("raw PII replayed via history: %q", msg.Content)
		}
	}
	if !strings.Contains(responder.lastHistory[0].Content, "[redacted]") {
		t.Fatalf("expected redacted transcript, got %q", responder.lastHistory[0].Content)
	}
}

func TestIPRateLimitCloses(t *testing.T) {
	h := New(session.NewMemoryStore(), &fakeLimiter{allowIP: false}, nil, nil, &fakeResponder{}, Options{})

	conn, teardown := dialTestServer(t, h)
	defer teardown()

	conn.WriteJSON(map[string]any{"message": "hello"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != closeRateLimited {
		t.Fatalf("expected close code %d, got %d", closeRateLimited, closeErr.Code)
	}
}

func TestTokenBudgetExhaustedCloses(t *testing.T) {
	limiter := &fakeLimiter{allowIP: true, allowBudget: false}
	h := New(session.NewMemoryStore(), limiter, nil, nil, &fakeResponder{answer: "long answer", tokens: 999}, Options{})

	conn, teardown := dialTestServer(t, h)
	defer teardown()

	conn.WriteJSON(map[string]any{"message": "hello"})

	frame := readFrame(t, conn)
	if frame["answer"] != answerExhausted {
		t.Fatalf("expected farewell, got %v", frame)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if _, ok := err.(*websocket.CloseError); !ok {
		t.Fatalf("expected connection close, got %v", err)
	}
}

func TestHistoryPersistedAcrossTurns(t *testing.T) {
	store := session.NewMemoryStore()
	h := New(store, nil, nil, nil, &fakeResponder{answer: "ok"}, Options{})

	conn, teardown := dialTestServer(t, h)
	defer teardown()

	conn.WriteJSON(map[string]any{"message": "first"})
	frame := readFrame(t, conn)
	id := frame["session"].(string)

	history, err := store.History(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected user+assistant turns, got %d", len(history))
	}
	if history[0].Sender != "user" || history[1].Sender != "assistant" {
		t.Fatalf("unexpected senders: %+v", history)
	}
}

func TestMalformedJSONKeepsConnection(t *testing.T) {
	h := New(session.NewMemoryStore(), nil, nil, nil, &fakeResponder{answer: "ok"}, Options{})

	conn, teardown := dialTestServer(t, h)
	defer teardown()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["error"] != "Invalid payload" {
		t.Fatalf("expected payload error, got %v", frame)
	}

	// Connection still usable.
	conn.WriteJSON(map[string]any{"message": "hello"})
	frame = readFrame(t, conn)
	if frame["answer"] != "ok" {
		t.Fatalf("expected answer after bad frame, got %v", frame)
	}
}
