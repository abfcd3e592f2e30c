package stream

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chathandler "github.com/axelfernandes/axel/backend/internal/handler/chat"
	"github.com/axelfernandes/axel/backend/internal/model/chat"
	"github.com/axelfernandes/axel/backend/internal/service/gateway"
)

// WebSocketHandler is the websocket variant of the stream endpoint: one chat
// request in, StreamEvent JSON frames out, connection closed after the done
// sentinel.
type WebSocketHandler struct {
	gw       *gateway.Service
	upgrader websocket.Upgrader
}

func NewWebSocket(gw *gateway.Service) *WebSocketHandler {
	return &WebSocketHandler{
		gw: gw,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	owner := chathandler.OwnerFrom(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var payload chathandler.Request
	if err := conn.ReadJSON(&payload); err != nil {
		conn.WriteJSON(chat.ErrorEvent("invalid request payload"))
		return
	}
	if err := payload.Validate(); err != nil {
		conn.WriteJSON(chat.ErrorEvent(err.Error()))
		return
	}

	sink := func(ev chat.StreamEvent) error {
		return conn.WriteJSON(ev)
	}

	if err := h.gw.Stream(r.Context(), payload.Gateway(owner), sink); err != nil {
		// Resolution failed before any event: report it on the socket so the
		// client sees a failure state instead of a silent close.
		conn.WriteJSON(chat.ErrorEvent(err.Error()))
	}
}
