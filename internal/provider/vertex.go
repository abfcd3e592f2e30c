package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/axelfernandes/axel/backend/internal/model/chat"
)

const (
	vertexDefaultModel   = "codestral"
	vertexDefaultVersion = "2501"
)

// VertexConfig carries the managed-platform settings for Mistral models
// hosted on Vertex AI. This variant is keyless per-user: auth rides on the
// platform access token, not a caller-supplied API key.
type VertexConfig struct {
	ProjectID    string
	Region       string
	Model        string
	ModelVersion string
	AccessToken  string
	// Endpoint overrides the computed regional URL, for tests.
	Endpoint string
}

// VertexMistral serves Mistral models through the Vertex AI rawPredict
// surface, which speaks the chat-completions wire format.
type VertexMistral struct {
	cfg          VertexConfig
	client       *http.Client
	streamClient *http.Client
}

func NewVertexMistral(cfg VertexConfig) *VertexMistral {
	if cfg.Model == "" {
		cfg.Model = vertexDefaultModel
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = vertexDefaultVersion
	}
	return &VertexMistral{
		cfg:          cfg,
		client:       &http.Client{Timeout: 60 * time.Second},
		streamClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (a *VertexMistral) Name() string { return "vertex_mistral" }

func (a *VertexMistral) fullModel() string {
	return a.cfg.Model + "-" + a.cfg.ModelVersion
}

func (a *VertexMistral) url(verb string) string {
	if a.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s:%s", strings.TrimSuffix(a.cfg.Endpoint, "/"), a.fullModel(), verb)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/mistralai/models/%s:%s",
		a.cfg.Region, a.cfg.ProjectID, a.cfg.Region, a.fullModel(), verb,
	)
}

func (a *VertexMistral) buildRequest(messages []chat.Message, opts chat.GenerationOptions, stream bool) openAIRequest {
	opts = opts.WithDefaults()
	// The hosted model is fixed by configuration; a caller-supplied model
	// name would not resolve on this endpoint.
	apiMsgs := make([]openAIMessage, len(messages))
	for i, m := range messages {
		apiMsgs[i] = openAIMessage{Role: mapRole(openAIRoles, m.Role), Content: m.Content}
	}
	return openAIRequest{
		Model:       a.fullModel(),
		Messages:    apiMsgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
}

func (a *VertexMistral) post(ctx context.Context, client *http.Client, url string, body openAIRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode vertex request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.AccessToken)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &RequestError{Provider: "vertex_mistral", Detail: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, requestError("vertex_mistral", resp)
	}
	return resp, nil
}

// Complete performs a buffered rawPredict call.
func (a *VertexMistral) Complete(ctx context.Context, messages []chat.Message, opts chat.GenerationOptions) (*Completion, error) {
	resp, err := a.post(ctx, a.client, a.url("rawPredict"), a.buildRequest(messages, opts, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage openAIUsage `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode vertex response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, &RequestError{Provider: "vertex_mistral", Detail: "response contained no choices"}
	}

	return &Completion{
		Content: result.Choices[0].Message.Content,
		Usage:   result.Usage.normalize(),
	}, nil
}

// CompleteStream performs a streaming streamRawPredict call.
func (a *VertexMistral) CompleteStream(ctx context.Context, messages []chat.Message, opts chat.GenerationOptions) (<-chan chat.StreamEvent, error) {
	resp, err := a.post(ctx, a.streamClient, a.url("streamRawPredict"), a.buildRequest(messages, opts, true))
	if err != nil {
		return nil, err
	}

	events := make(chan chat.StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		var usage *chat.Usage
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "data: ")
			if !ok {
				continue
			}
			if data == "[DONE]" {
				break
			}

			var chunk openAIStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if !emit(ctx, events, chat.ContentEvent(chunk.Choices[0].Delta.Content)) {
					return
				}
			}
			if chunk.Usage != nil {
				normalized := chunk.Usage.normalize()
				usage = &normalized
			}
		}
		if err := scanner.Err(); err != nil {
			emit(ctx, events, chat.ErrorEvent(fmt.Sprintf("vertex stream read failed: %v", err)))
			return
		}
		if usage != nil {
			emit(ctx, events, chat.UsageEvent(*usage))
		}
	}()
	return events, nil
}
