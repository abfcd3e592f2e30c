// Package session persists append-only conversation records.
package session

import (
	"context"
	"errors"

	"github.com/axelfernandes/axel/backend/internal/model/chat"
)

var ErrNotFound = errors.New("session not found")

// DefaultListLimit bounds ListByOwner when the caller does not.
const DefaultListLimit = 20

// previewRunes bounds the list-view preview of a session's opening message.
const previewRunes = 80

// Store owns persisted session state. AppendMessage advances UpdatedAt;
// messages are never reordered or removed.
type Store interface {
	Get(ctx context.Context, id string) (*chat.Session, error)
	Create(ctx context.Context, session *chat.Session) error
	AppendMessage(ctx context.Context, id string, message chat.Message) error
	ListByOwner(ctx context.Context, owner, repo string, limit int) ([]chat.SessionSummary, error)
}

// preview truncates the opening message to the list-view bound without
// splitting a multi-byte rune.
func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes])
}
