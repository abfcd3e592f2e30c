package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/axelfernandes/axel/backend/internal/credential"
	chatmodel "github.com/axelfernandes/axel/backend/internal/model/chat"
	"github.com/axelfernandes/axel/backend/internal/provider"
	"github.com/axelfernandes/axel/backend/internal/service/gateway"
	"github.com/axelfernandes/axel/backend/internal/service/session"
	"github.com/axelfernandes/axel/backend/pkg/utils"
)

// Request is the wire shape shared by the buffered and streaming endpoints.
type Request struct {
	Messages    []chatmodel.Message `json:"messages"`
	Provider    string              `json:"provider"`
	Model       string              `json:"model,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
	Repo        string              `json:"repo,omitempty"`
	SessionID   string              `json:"session_id,omitempty"`
}

// Validate checks the fields every chat call needs.
func (p Request) Validate() error {
	if p.Provider == "" {
		return errors.New("provider is required")
	}
	if len(p.Messages) == 0 {
		return errors.New("messages must not be empty")
	}
	return nil
}

// Gateway converts the wire shape into an orchestrator request.
func (p Request) Gateway(owner string) gateway.Request {
	opts := chatmodel.GenerationOptions{Model: p.Model}
	if p.Temperature != nil {
		opts.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		opts.MaxTokens = *p.MaxTokens
	}
	return gateway.Request{
		Owner:     owner,
		Messages:  p.Messages,
		Provider:  p.Provider,
		Options:   opts,
		Repo:      p.Repo,
		SessionID: p.SessionID,
	}
}

// OwnerFrom identifies the requesting user. Identity issuance is handled
// upstream of this service; the header is trusted as-is.
func OwnerFrom(r *http.Request) string {
	if owner := r.Header.Get("X-User-ID"); owner != "" {
		return owner
	}
	return "local"
}

// StatusFor maps gateway errors to HTTP status codes: configuration mistakes
// are client errors, upstream failures are gateway errors.
func StatusFor(err error) int {
	var reqErr *provider.RequestError
	switch {
	case errors.Is(err, credential.ErrMissingCredential), errors.Is(err, provider.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.As(err, &reqErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Handler serves the buffered chat endpoint and session reads.
type Handler struct {
	gw       *gateway.Service
	sessions session.Store
}

func New(gw *gateway.Service, sessions session.Store) *Handler {
	return &Handler{gw: gw, sessions: sessions}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/complete", h.handleComplete)
	r.Get("/chat/sessions", h.handleListSessions)
	r.Get("/chat/sessions/{sessionID}", h.handleGetSession)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var payload Request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := payload.Validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.gw.Complete(r.Context(), payload.Gateway(OwnerFrom(r)))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	limit := session.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			utils.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	summaries, err := h.sessions.ListByOwner(r.Context(), OwnerFrom(r), repo, limit)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"sessions": summaries})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	stored, err := h.sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if stored.Owner != OwnerFrom(r) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, stored)
}
