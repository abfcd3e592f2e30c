package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/axelfernandes/axel/backend/internal/model/chat"
)

func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// forEachStore runs a subtest against both Store implementations so they
// cannot drift apart.
func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteTestStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
}

func testSession(id, owner string) *chat.Session {
	now := time.Now().UTC()
	return &chat.Session{
		ID:    id,
		Owner: owner,
		Repo:  "axel",
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: "how does the tokenizer work?"},
			{Role: chat.RoleAssistant, Content: "it splits on byte pairs"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		want := testSession("s-1", "alice")
		if err := store.Create(ctx, want); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		got, err := store.Get(ctx, "s-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Owner != "alice" || got.Repo != "axel" {
			t.Fatalf("unexpected session fields: %+v", got)
		}
		if len(got.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(got.Messages))
		}
		if got.Messages[0].Role != chat.RoleUser || got.Messages[1].Role != chat.RoleAssistant {
			t.Fatalf("message order not preserved: %+v", got.Messages)
		}
	})
}

func TestStoreGetUnknown(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStoreAppendMessage(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		created := testSession("s-2", "alice")
		if err := store.Create(ctx, created); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		appends := []chat.Message{
			{Role: chat.RoleUser, Content: "and merges?"},
			{Role: chat.RoleAssistant, Content: "learned from the corpus"},
		}
		for _, m := range appends {
			if err := store.AppendMessage(ctx, "s-2", m); err != nil {
				t.Fatalf("AppendMessage failed: %v", err)
			}
		}

		got, err := store.Get(ctx, "s-2")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(got.Messages) != 4 {
			t.Fatalf("expected 4 messages, got %d", len(got.Messages))
		}
		if got.Messages[3].Content != "learned from the corpus" {
			t.Fatalf("appends out of order: %+v", got.Messages)
		}
		if !got.UpdatedAt.After(created.CreatedAt) {
			t.Fatalf("UpdatedAt did not advance: created=%v updated=%v", created.CreatedAt, got.UpdatedAt)
		}
	})
}

func TestStoreAppendToUnknown(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		err := store.AppendMessage(context.Background(), "nope", chat.Message{Role: chat.RoleUser, Content: "x"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStoreListByOwner(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour)
		for i, tc := range []struct {
			id, owner, repo string
		}{
			{"s-old", "alice", "axel"},
			{"s-new", "alice", "axel"},
			{"s-other-repo", "alice", "demo"},
			{"s-bob", "bob", "axel"},
		} {
			sess := testSession(tc.id, tc.owner)
			sess.Repo = tc.repo
			sess.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			sess.UpdatedAt = sess.CreatedAt
			if err := store.Create(ctx, sess); err != nil {
				t.Fatalf("Create(%s) failed: %v", tc.id, err)
			}
		}

		all, err := store.ListByOwner(ctx, "alice", "", 0)
		if err != nil {
			t.Fatalf("ListByOwner failed: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 sessions for alice, got %d", len(all))
		}
		for i := 1; i < len(all); i++ {
			if all[i].UpdatedAt.After(all[i-1].UpdatedAt) {
				t.Fatalf("list not ordered most-recent-first: %v before %v", all[i-1].UpdatedAt, all[i].UpdatedAt)
			}
		}

		filtered, err := store.ListByOwner(ctx, "alice", "demo", 0)
		if err != nil {
			t.Fatalf("ListByOwner with repo filter failed: %v", err)
		}
		if len(filtered) != 1 || filtered[0].ID != "s-other-repo" {
			t.Fatalf("unexpected repo-filtered result: %+v", filtered)
		}

		limited, err := store.ListByOwner(ctx, "alice", "", 1)
		if err != nil {
			t.Fatalf("ListByOwner with limit failed: %v", err)
		}
		if len(limited) != 1 || limited[0].ID != "s-other-repo" {
			t.Fatalf("limit should keep only the newest session, got %+v", limited)
		}
	})
}

func TestStorePreviewTruncation(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		long := strings.Repeat("é", 100)
		sess := testSession("s-long", "alice")
		sess.Messages = []chat.Message{{Role: chat.RoleUser, Content: long}}
		if err := store.Create(ctx, sess); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		summaries, err := store.ListByOwner(ctx, "alice", "", 0)
		if err != nil {
			t.Fatalf("ListByOwner failed: %v", err)
		}
		if len(summaries) != 1 {
			t.Fatalf("expected 1 summary, got %d", len(summaries))
		}
		got := summaries[0].Preview
		if runeCount := len([]rune(got)); runeCount != previewRunes {
			t.Fatalf("expected %d-rune preview, got %d runes", previewRunes, runeCount)
		}
		if got != strings.Repeat("é", previewRunes) {
			t.Fatalf("preview split a multi-byte rune: %q", got)
		}
	})
}

func TestSQLiteUpdatedAtMonotonic(t *testing.T) {
	store := newSQLiteTestStore(t)
	ctx := context.Background()

	sess := testSession("s-time", "alice")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	prev := sess.UpdatedAt
	for i := 0; i < 3; i++ {
		if err := store.AppendMessage(ctx, "s-time", chat.Message{Role: chat.RoleAssistant, Content: "more"}); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
		got, err := store.Get(ctx, "s-time")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !got.UpdatedAt.After(prev) {
			t.Fatalf("UpdatedAt not strictly increasing: %v then %v", prev, got.UpdatedAt)
		}
		prev = got.UpdatedAt
	}
}
