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
	openAIBaseURL      = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-4o"

	cerebrasBaseURL      = "https://api.cerebras.ai/v1"
	cerebrasDefaultModel = "llama3.1-8b"
)

var openAIRoles = map[chat.Role]string{
	chat.RoleSystem:    "system",
	chat.RoleUser:      "user",
	chat.RoleAssistant: "assistant",
}

// OpenAI speaks the chat-completions wire format. It also backs every
// OpenAI-compatible provider (Cerebras) via a different base URL.
type OpenAI struct {
	name         string
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
	streamClient *http.Client
}

// NewOpenAI creates the adapter for api.openai.com.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	return NewOpenAICompatible("openai", apiKey, baseURL, openAIDefaultModel)
}

// NewCerebras creates the adapter for the Cerebras OpenAI-compatible endpoint.
func NewCerebras(apiKey, baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = cerebrasBaseURL
	}
	return NewOpenAICompatible("cerebras", apiKey, baseURL, cerebrasDefaultModel)
}

// NewOpenAICompatible creates an adapter for any chat-completions endpoint.
func NewOpenAICompatible(name, apiKey, baseURL, defaultModel string) *OpenAI {
	return &OpenAI{
		name:         name,
		apiKey:       apiKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 60 * time.Second},
		streamClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (a *OpenAI) Name() string { return a.name }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIRequest struct {
	Model         string               `json:"model"`
	Messages      []openAIMessage      `json:"messages"`
	Temperature   float64              `json:"temperature"`
	MaxTokens     int                  `json:"max_tokens"`
	Stream        bool                 `json:"stream,omitempty"`
	StreamOptions *openAIStreamOptions `json:"stream_options,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u openAIUsage) normalize() chat.Usage {
	return chat.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.PromptTokens + u.CompletionTokens,
	}
}

func (a *OpenAI) buildRequest(messages []chat.Message, opts chat.GenerationOptions, stream bool) openAIRequest {
	opts = opts.WithDefaults()
	model := opts.Model
	if model == "" {
		model = a.defaultModel
	}

	apiMsgs := make([]openAIMessage, len(messages))
	for i, m := range messages {
		apiMsgs[i] = openAIMessage{Role: mapRole(openAIRoles, m.Role), Content: m.Content}
	}

	req := openAIRequest{
		Model:       model,
		Messages:    apiMsgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if stream {
		req.Stream = true
		req.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}
	return req
}

func (a *OpenAI) post(ctx context.Context, client *http.Client, body openAIRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", a.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &RequestError{Provider: a.name, Detail: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, requestError(a.name, resp)
	}
	return resp, nil
}

// Complete performs a buffered chat completion.
func (a *OpenAI) Complete(ctx context.Context, messages []chat.Message, opts chat.GenerationOptions) (*Completion, error) {
	resp, err := a.post(ctx, a.client, a.buildRequest(messages, opts, false))
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
		return nil, fmt.Errorf("failed to decode %s response: %w", a.name, err)
	}
	if len(result.Choices) == 0 {
		return nil, &RequestError{Provider: a.name, Detail: "response contained no choices"}
	}

	return &Completion{
		Content: result.Choices[0].Message.Content,
		Usage:   result.Usage.normalize(),
	}, nil
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
}

// CompleteStream performs a streaming chat completion. The request is issued
// synchronously so upstream rejections surface as an error, not an event.
func (a *OpenAI) CompleteStream(ctx context.Context, messages []chat.Message, opts chat.GenerationOptions) (<-chan chat.StreamEvent, error) {
	resp, err := a.post(ctx, a.streamClient, a.buildRequest(messages, opts, true))
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
			emit(ctx, events, chat.ErrorEvent(fmt.Sprintf("%s stream read failed: %v", a.name, err)))
			return
		}
		if usage != nil {
			emit(ctx, events, chat.UsageEvent(*usage))
		}
	}()
	return events, nil
}
