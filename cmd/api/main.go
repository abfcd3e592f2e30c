package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/axelfernandes/axel/backend/internal/config"
	"github.com/axelfernandes/axel/backend/internal/credential"
	"github.com/axelfernandes/axel/backend/internal/handler"
	"github.com/axelfernandes/axel/backend/internal/provider"
	"github.com/axelfernandes/axel/backend/internal/service/gateway"
	"github.com/axelfernandes/axel/backend/internal/service/retrieval"
	"github.com/axelfernandes/axel/backend/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	sessions := newSessionStore(cfg.Database)

	var retriever gateway.Retriever
	if cfg.Retrieval.Enabled() {
		retriever = retrieval.NewService(retrieval.Config{
			QdrantURL:      cfg.Retrieval.QdrantURL,
			Collection:     cfg.Retrieval.Collection,
			EmbeddingModel: cfg.Retrieval.EmbeddingModel,
			EmbeddingKey:   cfg.Retrieval.EmbeddingKey,
		})
		log.Printf("retrieval augmentation enabled against %s", cfg.Retrieval.QdrantURL)
	} else {
		log.Println("QDRANT_URL not configured, retrieval augmentation disabled")
	}

	registry := provider.NewRegistry(provider.RegistryConfig{
		Vertex: provider.VertexConfig{
			ProjectID:    cfg.Vertex.ProjectID,
			Region:       cfg.Vertex.Region,
			Model:        cfg.Vertex.Model,
			ModelVersion: cfg.Vertex.ModelVersion,
			AccessToken:  cfg.Vertex.AccessToken,
		},
	})

	creds := credential.NewEnvStore(cfg.Crypto.EncryptionKey)
	gatewaySvc := gateway.NewService(registry, creds, retriever, sessions)

	router := handler.NewRouter(gatewaySvc, sessions)
	startServer(ctx, cfg.Server, router)
}

func newSessionStore(cfg config.DatabaseConfig) session.Store {
	store, err := session.NewSQLiteStore(cfg.Path)
	if err != nil {
		log.Printf("warning: failed to open session database at %s: %v", cfg.Path, err)
		log.Println("falling back to in-memory session store; conversations will not survive restarts")
		return session.NewMemoryStore()
	}
	log.Printf("session store backed by %s", cfg.Path)
	return store
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Axel backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
