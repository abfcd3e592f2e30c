package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/axelfernandes/axel/backend/internal/credential"
	chatmodel "github.com/axelfernandes/axel/backend/internal/model/chat"
	"github.com/axelfernandes/axel/backend/internal/provider"
	"github.com/axelfernandes/axel/backend/internal/service/gateway"
	"github.com/axelfernandes/axel/backend/internal/service/session"
)

// stubProvider answers every call with a fixed reply.
type stubProvider struct {
	reply string
	usage chatmodel.Usage
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(context.Context, []chatmodel.Message, chatmodel.GenerationOptions) (*provider.Completion, error) {
	return &provider.Completion{Content: s.reply, Usage: s.usage}, nil
}

func (s *stubProvider) CompleteStream(ctx context.Context, _ []chatmodel.Message, _ chatmodel.GenerationOptions) (<-chan chatmodel.StreamEvent, error) {
	events := make(chan chatmodel.StreamEvent)
	go func() {
		defer close(events)
		for _, ev := range []chatmodel.StreamEvent{
			chatmodel.ContentEvent(s.reply),
			chatmodel.UsageEvent(s.usage),
		} {
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

type stubResolver struct {
	p provider.Provider
}

func (r *stubResolver) Resolve(name, _ string) (provider.Provider, error) {
	if name != "stub" {
		return nil, provider.ErrUnknownProvider
	}
	return r.p, nil
}

func (r *stubResolver) RequiresKey(string) bool { return true }

func setupRouter(creds credential.Store) (*chi.Mux, session.Store) {
	store := session.NewMemoryStore()
	gw := gateway.NewService(
		&stubResolver{p: &stubProvider{
			reply: "the answer",
			usage: chatmodel.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6},
		}},
		creds, nil, store,
	)
	handler := New(gw, store)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store
}

func postComplete(t *testing.T, r http.Handler, owner string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/chat/complete", bytes.NewReader(body))
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCompleteReturnsFreshSession(t *testing.T) {
	r, store := setupRouter(credential.StaticStore{"stub": "key"})

	rec := postComplete(t, r, "alice", Request{
		Provider: "stub",
		Messages: []chatmodel.Message{{Role: chatmodel.RoleUser, Content: "hello"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var result gateway.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Content != "the answer" {
		t.Fatalf("unexpected content %q", result.Content)
	}
	if result.SessionID == "" {
		t.Fatal("response carries no session id")
	}
	if result.Usage.TotalTokens != 6 {
		t.Fatalf("unexpected usage %+v", result.Usage)
	}

	stored, err := store.Get(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("session was not persisted: %v", err)
	}
	if stored.Owner != "alice" {
		t.Fatalf("session owner %q, want alice", stored.Owner)
	}
}

func TestCompleteDefaultOwner(t *testing.T) {
	r, store := setupRouter(credential.StaticStore{"stub": "key"})

	rec := postComplete(t, r, "", Request{
		Provider: "stub",
		Messages: []chatmodel.Message{{Role: chatmodel.RoleUser, Content: "hello"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var result gateway.Result
	json.Unmarshal(rec.Body.Bytes(), &result)
	stored, err := store.Get(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Owner != "local" {
		t.Fatalf("anonymous requests belong to %q, want local", stored.Owner)
	}
}

func TestCompleteValidation(t *testing.T) {
	r, _ := setupRouter(credential.StaticStore{"stub": "key"})

	cases := []struct {
		name    string
		payload interface{}
	}{
		{"missing provider", Request{Messages: []chatmodel.Message{{Role: chatmodel.RoleUser, Content: "x"}}}},
		{"empty messages", Request{Provider: "stub"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postComplete(t, r, "alice", tc.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/chat/complete", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestCompleteConfigurationErrors(t *testing.T) {
	valid := []chatmodel.Message{{Role: chatmodel.RoleUser, Content: "x"}}

	r, _ := setupRouter(credential.StaticStore{"stub": "key"})
	rec := postComplete(t, r, "alice", Request{Provider: "grok", Messages: valid})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown provider should be 400, got %d", rec.Code)
	}

	r, _ = setupRouter(credential.StaticStore{})
	rec = postComplete(t, r, "alice", Request{Provider: "stub", Messages: valid})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing credential should be 400, got %d", rec.Code)
	}
}

func seedSession(t *testing.T, store session.Store, id, owner, repo string, updated time.Time) {
	t.Helper()
	err := store.Create(context.Background(), &chatmodel.Session{
		ID:    id,
		Owner: owner,
		Repo:  repo,
		Messages: []chatmodel.Message{
			{Role: chatmodel.RoleUser, Content: "opening question"},
			{Role: chatmodel.RoleAssistant, Content: "opening answer"},
		},
		CreatedAt: updated,
		UpdatedAt: updated,
	})
	if err != nil {
		t.Fatalf("failed to seed session %s: %v", id, err)
	}
}

func TestListSessions(t *testing.T) {
	r, store := setupRouter(credential.StaticStore{"stub": "key"})
	now := time.Now().UTC()
	seedSession(t, store, "s-1", "alice", "axel", now.Add(-2*time.Minute))
	seedSession(t, store, "s-2", "alice", "demo", now.Add(-time.Minute))
	seedSession(t, store, "s-3", "bob", "axel", now)

	req := httptest.NewRequest(http.MethodGet, "/chat/sessions", nil)
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Sessions []chatmodel.SessionSummary `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Sessions) != 2 {
		t.Fatalf("expected 2 sessions for alice, got %d", len(body.Sessions))
	}
	if body.Sessions[0].ID != "s-2" {
		t.Fatalf("expected most recent first, got %+v", body.Sessions)
	}
	if body.Sessions[0].Preview != "opening question" {
		t.Fatalf("unexpected preview %q", body.Sessions[0].Preview)
	}

	req = httptest.NewRequest(http.MethodGet, "/chat/sessions?repo=demo", nil)
	req.Header.Set("X-User-ID", "alice")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Sessions) != 1 || body.Sessions[0].ID != "s-2" {
		t.Fatalf("repo filter returned %+v", body.Sessions)
	}

	req = httptest.NewRequest(http.MethodGet, "/chat/sessions?limit=banana", nil)
	req.Header.Set("X-User-ID", "alice")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit should be 400, got %d", rec.Code)
	}
}

func TestGetSession(t *testing.T) {
	r, store := setupRouter(credential.StaticStore{"stub": "key"})
	seedSession(t, store, "s-1", "alice", "axel", time.Now().UTC())

	get := func(id, owner string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/chat/sessions/"+id, nil)
		req.Header.Set("X-User-ID", owner)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := get("s-1", "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stored chatmodel.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &stored); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	if stored.ID != "s-1" || len(stored.Messages) != 2 {
		t.Fatalf("unexpected session %+v", stored)
	}

	if rec := get("s-missing", "alice"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session should be 404, got %d", rec.Code)
	}

	// Another owner's session is indistinguishable from a missing one.
	if rec := get("s-1", "mallory"); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign session should be 404, got %d", rec.Code)
	}
}
