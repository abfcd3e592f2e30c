package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/axelfernandes/axel/backend/internal/model/chat"
)

// ErrUnknownProvider is returned by the registry when the requested provider
// name does not resolve to an adapter.
var ErrUnknownProvider = errors.New("unknown provider")

// Completion is the buffered result of a non-streaming call.
type Completion struct {
	Content string
	Usage   chat.Usage
}

// Provider translates the canonical message list into one backend's wire
// format. CompleteStream returns a finite, non-restartable event sequence:
// zero or more content events in token arrival order, at most one cumulative
// usage event after all content, then channel close. After an error event no
// further events are sent. Implementations close the channel even when ctx is
// cancelled, so callers can always range over it.
type Provider interface {
	Name() string
	Complete(ctx context.Context, messages []chat.Message, opts chat.GenerationOptions) (*Completion, error)
	CompleteStream(ctx context.Context, messages []chat.Message, opts chat.GenerationOptions) (<-chan chat.StreamEvent, error)
}

// RequestError reports a non-success upstream response or transport failure.
type RequestError struct {
	Provider   string
	StatusCode int
	Detail     string
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed with status %d: %s", e.Provider, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Detail)
}

// requestError drains the response body into a RequestError.
func requestError(name string, resp *http.Response) *RequestError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &RequestError{
		Provider:   name,
		StatusCode: resp.StatusCode,
		Detail:     strings.TrimSpace(string(body)),
	}
}

// mapRole applies an adapter's role table, falling back to the provider's
// user-turn role for anything it does not recognize.
func mapRole(table map[chat.Role]string, role chat.Role) string {
	if mapped, ok := table[role]; ok {
		return mapped
	}
	return table[chat.RoleUser]
}

// splitSystem extracts every system-role turn into one combined instruction
// string, preserving original order, and returns the remaining turns.
func splitSystem(messages []chat.Message) (string, []chat.Message) {
	var system []string
	rest := make([]chat.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == chat.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n"), rest
}

// emit delivers one event unless the stream consumer is gone.
func emit(ctx context.Context, events chan<- chat.StreamEvent, ev chat.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
