package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strandlabs/loom/internal/agent"
	"github.com/strandlabs/loom/internal/chat"
	"github.com/strandlabs/loom/internal/config"
	"github.com/strandlabs/loom/internal/notify"
	"github.com/strandlabs/loom/internal/sessions"
	"github.com/strandlabs/loom/pkg/models"
)

type echoProvider struct{}

func (echoProvider) Name() string     { return "echo" }
func (echoProvider) Models() []string { return []string{"echo-1"} }

func (echoProvider) Chat(_ context.Context, req *agent.ChatRequest) (*models.Message, error) {
	last := req.Messages[len(req.Messages)-1]
	return &models.Message{
		Role:    models.RoleAssistant,
		Content: "echo: " + last.Content,
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *chat.Service) {
	t.Helper()
	store := sessions.NewMemoryStore()
	notifier := notify.New(nil)
	registry := agent.NewToolRegistry()

	orch, err := agent.NewOrchestrator(agent.Config{
		Store:    store,
		Registry: registry,
		Notifier: notifier,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	svc, err := chat.NewService(chat.Config{Store: store, Orchestrator: orch})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.RegisterProvider(echoProvider{}); err != nil {
		t.Fatal(err)
	}

	server, err := NewServer(Config{
		Chat:     svc,
		Notifier: notifier,
		Server:   config.ServerConfig{},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, svc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestCreateAndGetSession(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/sessions", map[string]any{
		"title":         "review",
		"system_prompt": "be brief",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var created models.Session
	decodeJSON(t, resp, &created)
	if created.ID == "" || created.Title != "review" {
		t.Fatalf("created = %+v", created)
	}

	resp, err := http.Get(ts.URL + "/v1/sessions/" + created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var fetched models.Session
	decodeJSON(t, resp, &fetched)
	if len(fetched.Messages) != 1 || fetched.Messages[0].Role != models.RoleSystem {
		t.Errorf("messages = %+v", fetched.Messages)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/sessions/missing")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeJSON(t, resp, &body)
	if body.Error.Code != "SESSION_NOT_FOUND" {
		t.Errorf("code = %q", body.Error.Code)
	}
}

func TestSendMessage(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/sessions/sess-1/messages", map[string]any{
		"content": "hello",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var reply models.Message
	decodeJSON(t, resp, &reply)
	if reply.Role != models.RoleAssistant || reply.Content != "echo: hello" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestSendMessageValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/sessions/sess-1/messages", map[string]any{
		"content": "",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/v1/sessions/sess-1/messages", map[string]any{
		"content": "hi", "bogus_field": true,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d, want 400", resp.StatusCode)
	}
}

func TestListSessions(t *testing.T) {
	ts, svc := newTestServer(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two"} {
		if _, err := svc.CreateSession(ctx, chat.CreateSessionParams{Title: title}); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := http.Get(ts.URL + "/v1/sessions")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Sessions []models.Session `json:"sessions"`
		Count    int              `json:"count"`
	}
	decodeJSON(t, resp, &body)
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
}

func TestAbortWithoutTurn(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/sessions/any/abort", map[string]any{})
	var body struct {
		Aborted bool `json:"aborted"`
	}
	decodeJSON(t, resp, &body)
	if body.Aborted {
		t.Error("no active turn, aborted should be false")
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status  string `json:"status"`
		Backend string `json:"backend"`
	}
	decodeJSON(t, resp, &body)
	if body.Status != "ok" || body.Backend != "memory" {
		t.Errorf("body = %+v", body)
	}
}

func TestProvidersEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/providers")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Providers []string `json:"providers"`
	}
	decodeJSON(t, resp, &body)
	if len(body.Providers) != 1 || body.Providers[0] != "echo" {
		t.Errorf("providers = %v", body.Providers)
	}
}

func TestEventsWebSocket(t *testing.T) {
	ts, svc := newTestServer(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, chat.CreateSessionParams{Title: "ws"})
	if err != nil {
		t.Fatal(err)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + session.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := svc.SendMessage(ctx, session.ID, "ping", chat.SendOptions{}); err != nil {
		t.Fatal(err)
	}

	types := make([]string, 0, 2)
	for len(types) < 2 {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var event models.Event
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("read event: %v (got %v)", err, types)
		}
		if event.SessionID != session.ID {
			t.Errorf("event for session %q", event.SessionID)
		}
		types = append(types, string(event.Type))
	}
	if types[0] != "message.user.new" || types[1] != "message.assistant.new" {
		t.Errorf("event order = %v", types)
	}
}

func TestEventsWebSocketUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/nope/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial to unknown session should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %v", resp)
	}
}
