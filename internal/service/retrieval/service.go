// Package retrieval queries the repository vector index for context snippets.
// The index itself is owned by the background crawler; this service only
// consumes its search capability.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

const (
	defaultEmbeddingURL   = "https://api.openai.com/v1/embeddings"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultCollection     = "axel_codebase"

	// DefaultTopK bounds a query when the caller does not.
	DefaultTopK = 5
)

// Snippet is one ranked retrieval result. Distance is the index's distance
// measure for the query: lower means closer.
type Snippet struct {
	Content    string  `json:"content"`
	SourcePath string  `json:"sourcePath"`
	Distance   float64 `json:"distance"`
}

// Config locates the vector index and the embedding endpoint. The service is
// constructed once per process and passed into the gateway explicitly.
type Config struct {
	QdrantURL      string
	Collection     string
	EmbeddingURL   string
	EmbeddingModel string
	EmbeddingKey   string
}

type Service struct {
	cfg    Config
	client *http.Client
}

func NewService(cfg Config) *Service {
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}
	if cfg.EmbeddingURL == "" {
		cfg.EmbeddingURL = defaultEmbeddingURL
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultEmbeddingModel
	}
	return &Service{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Query embeds the text and searches the index, returning snippets ordered by
// ascending distance. Any failure is returned to the caller, which decides
// whether to proceed unaugmented.
func (s *Service) Query(ctx context.Context, text string, topK int) ([]Snippet, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, vector, topK)
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"model": s.cfg.EmbeddingModel,
		"input": text,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.EmbeddingURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.EmbeddingKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.EmbeddingKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned status %d", resp.StatusCode)
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return result.Data[0].Embedding, nil
}

func (s *Service) search(ctx context.Context, vector []float32, topK int) ([]Snippet, error) {
	endpoint := fmt.Sprintf("%s/collections/%s/points/search", s.cfg.QdrantURL, s.cfg.Collection)
	payload, _ := json.Marshal(map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qdrant search failed with status %d", resp.StatusCode)
	}

	var result struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				Content string `json:"content"`
				Path    string `json:"path"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	snippets := make([]Snippet, 0, len(result.Result))
	for _, item := range result.Result {
		if item.Payload.Content == "" {
			continue
		}
		snippets = append(snippets, Snippet{
			Content:    item.Payload.Content,
			SourcePath: item.Payload.Path,
			Distance:   item.Score,
		})
	}
	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].Distance < snippets[j].Distance
	})
	return snippets, nil
}
