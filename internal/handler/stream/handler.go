// Package stream serves the incremental chat transports: Server-Sent Events
// and a websocket variant. Both relay gateway StreamEvents verbatim and
// terminate with an explicit end-of-stream marker.
package stream

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	chathandler "github.com/axelfernandes/axel/backend/internal/handler/chat"
	"github.com/axelfernandes/axel/backend/internal/model/chat"
	"github.com/axelfernandes/axel/backend/internal/service/gateway"
	"github.com/axelfernandes/axel/backend/pkg/utils"
)

// doneMarker terminates every SSE stream, distinct from any content event.
const doneMarker = "[DONE]"

// Handler streams AI responses over Server-Sent Events.
type Handler struct {
	gw *gateway.Service
}

func New(gw *gateway.Service) *Handler {
	return &Handler{gw: gw}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/stream", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var payload chathandler.Request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := payload.Validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Headers go out lazily so resolution failures can still be answered
	// with a plain error response instead of a half-open event stream.
	started := false
	sink := func(ev chat.StreamEvent) error {
		if !started {
			utils.SetupSSEHeaders(w)
			started = true
		}
		if ev.Done && ev.Error == "" && ev.Content == "" && ev.Usage == nil {
			return utils.SendSSERaw(w, flusher, doneMarker)
		}
		return utils.SendSSEChunk(w, flusher, ev)
	}

	if err := h.gw.Stream(r.Context(), payload.Gateway(chathandler.OwnerFrom(r)), sink); err != nil {
		if !started {
			utils.RespondError(w, chathandler.StatusFor(err), err.Error())
			return
		}
		log.Printf("[sse] stream ended with error: %v", err)
	}
}
