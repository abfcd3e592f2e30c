// Package gateway normalizes heterogeneous LLM providers behind one
// request/response and one incremental-event contract, injects retrieval
// context, and persists every completed turn exactly once.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/axelfernandes/axel/backend/internal/credential"
	"github.com/axelfernandes/axel/backend/internal/model/chat"
	"github.com/axelfernandes/axel/backend/internal/provider"
	"github.com/axelfernandes/axel/backend/internal/service/retrieval"
	"github.com/axelfernandes/axel/backend/internal/service/session"
)

// persistTimeout bounds the write that runs after a stream ends, detached
// from the (possibly cancelled) request context.
const persistTimeout = 10 * time.Second

// Resolver maps a provider name plus credential to an adapter.
type Resolver interface {
	Resolve(name, apiKey string) (provider.Provider, error)
	RequiresKey(name string) bool
}

// Retriever returns ranked context snippets for a query.
type Retriever interface {
	Query(ctx context.Context, text string, topK int) ([]retrieval.Snippet, error)
}

// Service drives one chat turn end to end: resolve provider, augment,
// stream or complete, persist.
type Service struct {
	resolver  Resolver
	creds     credential.Store
	retriever Retriever // nil disables augmentation
	sessions  session.Store
}

func NewService(resolver Resolver, creds credential.Store, retriever Retriever, sessions session.Store) *Service {
	return &Service{
		resolver:  resolver,
		creds:     creds,
		retriever: retriever,
		sessions:  sessions,
	}
}

// Request is the uniform shape for both the buffered and streaming paths.
type Request struct {
	Owner     string
	Messages  []chat.Message
	Provider  string
	Options   chat.GenerationOptions
	Repo      string
	SessionID string
}

// Result is the buffered response.
type Result struct {
	Content   string     `json:"content"`
	SessionID string     `json:"session_id"`
	Usage     chat.Usage `json:"usage"`
}

// Sink receives relayed stream events. A non-nil return means the consumer
// is gone and the producer should finalize.
type Sink func(chat.StreamEvent) error

// resolve validates the provider name and credential presence. No network
// activity or side effects happen here.
func (s *Service) resolve(req Request) (provider.Provider, error) {
	var key string
	var hasKey bool
	if s.resolver.RequiresKey(req.Provider) {
		key, hasKey = s.creds.KeyFor(req.Provider)
	} else {
		hasKey = true
	}

	p, err := s.resolver.Resolve(req.Provider, key)
	if err != nil {
		return nil, err
	}
	if !hasKey || (s.resolver.RequiresKey(req.Provider) && key == "") {
		return nil, fmt.Errorf("%w: %s", credential.ErrMissingCredential, req.Provider)
	}
	return p, nil
}

// Complete runs the collapsed state machine: resolve, augment, one buffered
// call, persist.
func (s *Service) Complete(ctx context.Context, req Request) (*Result, error) {
	p, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	outgoing := s.augment(ctx, req.Messages, req.Repo)

	completion, err := p.Complete(ctx, outgoing, req.Options)
	if err != nil {
		return nil, err
	}

	if err := s.persist(req, sessionID, completion.Content); err != nil {
		log.Printf("[gateway] failed to persist session %s: %v", sessionID, err)
	}

	return &Result{
		Content:   completion.Content,
		SessionID: sessionID,
		Usage:     completion.Usage,
	}, nil
}

// Stream drives the adapter's event sequence, relaying each event to the sink
// while accumulating content. On every terminal path — completion, upstream
// error, consumer disconnect, context cancellation — the accumulated content
// is persisted (when non-empty) and the done sentinel is sent last.
//
// Resolution failures return before any event is sent, so the transport can
// still answer with a plain error response.
func (s *Service) Stream(ctx context.Context, req Request, sink Sink) error {
	p, err := s.resolve(req)
	if err != nil {
		return err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	outgoing := s.augment(ctx, req.Messages, req.Repo)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := p.CompleteStream(streamCtx, outgoing, req.Options)
	if err != nil {
		// Upstream rejected before any tokens: one error event, then the
		// sentinel. Nothing accumulated, so nothing to persist.
		sink(chat.ErrorEvent(err.Error()))
		sink(chat.StreamEvent{SessionID: sessionID, Done: true})
		return nil
	}

	var transcript strings.Builder
relay:
	for {
		select {
		case <-ctx.Done():
			// Caller disconnected. cancel() makes the producer close the
			// channel; whatever arrived so far is still persisted.
			cancel()
			break relay
		case ev, ok := <-events:
			if !ok {
				break relay
			}
			if ev.Error != "" {
				sink(ev)
				break relay
			}
			if ev.Content != "" {
				transcript.WriteString(ev.Content)
				ev.SessionID = sessionID
			}
			if err := sink(ev); err != nil {
				cancel()
				break relay
			}
		}
	}

	if transcript.Len() > 0 {
		if err := s.persist(req, sessionID, transcript.String()); err != nil {
			log.Printf("[gateway] failed to persist session %s: %v", sessionID, err)
		}
	}

	sink(chat.StreamEvent{SessionID: sessionID, Done: true})
	return nil
}

// persist appends the assistant turn, creating the session on first use.
// It runs against a detached context so a cancelled request cannot skip it.
// The stored history is the caller's original message list, not the
// retrieval-augmented variant sent upstream.
func (s *Service) persist(req Request, sessionID, content string) error {
	if content == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	assistant := chat.Message{Role: chat.RoleAssistant, Content: content}

	_, err := s.sessions.Get(ctx, sessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		now := time.Now().UTC()
		messages := make([]chat.Message, 0, len(req.Messages)+1)
		messages = append(messages, req.Messages...)
		messages = append(messages, assistant)
		return s.sessions.Create(ctx, &chat.Session{
			ID:        sessionID,
			Owner:     req.Owner,
			Repo:      req.Repo,
			Messages:  messages,
			CreatedAt: now,
			UpdatedAt: now,
		})
	case err != nil:
		return err
	default:
		return s.sessions.AppendMessage(ctx, sessionID, assistant)
	}
}
