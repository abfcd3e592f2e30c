package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/axelfernandes/axel/backend/internal/handler/chat"
	"github.com/axelfernandes/axel/backend/internal/handler/stream"
	middlewarePkg "github.com/axelfernandes/axel/backend/internal/middleware"
	"github.com/axelfernandes/axel/backend/internal/service/gateway"
	"github.com/axelfernandes/axel/backend/internal/service/session"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(gw *gateway.Service, sessions session.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(gw, sessions)
	streamHandler := stream.New(gw)
	wsHandler := stream.NewWebSocket(gw)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
