package config

import (
	"fmt"
	"os"
	"strings"
)

// Config aggregates every service setting.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Crypto    CryptoConfig
	Retrieval RetrievalConfig
	Vertex    VertexConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Database:  loadDatabaseConfig(),
		Crypto:    loadCryptoConfig(),
		Retrieval: loadRetrievalConfig(),
		Vertex:    loadVertexConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// DatabaseConfig locates the session store.
type DatabaseConfig struct {
	Path string
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{Path: getEnvOrDefault("DATABASE_PATH", "axel.db")}
}

// CryptoConfig carries the secret protecting stored API keys.
type CryptoConfig struct {
	EncryptionKey string
}

func loadCryptoConfig() CryptoConfig {
	return CryptoConfig{
		EncryptionKey: getEnvOrDefault("ENCRYPTION_KEY", "dev-encryption-key-32-bytes!!"),
	}
}

// RetrievalConfig locates the repository vector index. Retrieval stays
// disabled until a Qdrant URL is configured.
type RetrievalConfig struct {
	QdrantURL      string
	Collection     string
	EmbeddingModel string
	EmbeddingKey   string
}

// Enabled reports whether retrieval augmentation can run.
func (c RetrievalConfig) Enabled() bool {
	return c.QdrantURL != ""
}

func loadRetrievalConfig() RetrievalConfig {
	embeddingKey := strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY"))
	if embeddingKey == "" {
		// The embedding endpoint defaults to OpenAI, so its key is the
		// natural fallback.
		embeddingKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}

	return RetrievalConfig{
		QdrantURL:      strings.TrimSpace(os.Getenv("QDRANT_URL")),
		Collection:     getEnvOrDefault("QDRANT_COLLECTION", "axel_codebase"),
		EmbeddingModel: getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingKey:   embeddingKey,
	}
}

// VertexConfig describes the managed Mistral-on-Vertex deployment.
type VertexConfig struct {
	ProjectID    string
	Region       string
	Model        string
	ModelVersion string
	AccessToken  string
}

func loadVertexConfig() VertexConfig {
	return VertexConfig{
		ProjectID:    strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT_ID")),
		Region:       getEnvOrDefault("GOOGLE_CLOUD_REGION", "us-central1"),
		Model:        getEnvOrDefault("VERTEX_MODEL_NAME", "codestral"),
		ModelVersion: getEnvOrDefault("VERTEX_MODEL_VERSION", "2501"),
		AccessToken:  strings.TrimSpace(os.Getenv("VERTEX_ACCESS_TOKEN")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
