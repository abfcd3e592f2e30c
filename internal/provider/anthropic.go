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
	anthropicBaseURL      = "https://api.anthropic.com"
	anthropicVersion      = "2023-06-01"
	anthropicDefaultModel = "claude-3-5-sonnet-20241022"
)

// System turns are carried in a dedicated field, so the table only remaps the
// conversational roles.
var anthropicRoles = map[chat.Role]string{
	chat.RoleUser:      "user",
	chat.RoleAssistant: "assistant",
}

// Anthropic speaks the messages API.
type Anthropic struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	streamClient *http.Client
}

func NewAnthropic(apiKey, baseURL string) *Anthropic {
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &Anthropic{
		apiKey:       apiKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		client:       &http.Client{Timeout: 60 * time.Second},
		streamClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream,omitempty"`
}

func (a *Anthropic) buildRequest(messages []chat.Message, opts chat.GenerationOptions, stream bool) anthropicRequest {
	opts = opts.WithDefaults()
	model := opts.Model
	if model == "" {
		model = anthropicDefaultModel
	}

	system, turns := splitSystem(messages)
	apiMsgs := make([]anthropicMessage, len(turns))
	for i, m := range turns {
		apiMsgs[i] = anthropicMessage{Role: mapRole(anthropicRoles, m.Role), Content: m.Content}
	}

	return anthropicRequest{
		Model:       model,
		System:      system,
		Messages:    apiMsgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
}

func (a *Anthropic) post(ctx context.Context, client *http.Client, body anthropicRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &RequestError{Provider: "anthropic", Detail: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, requestError("anthropic", resp)
	}
	return resp, nil
}

// Complete performs a buffered messages call.
func (a *Anthropic) Complete(ctx context.Context, messages []chat.Message, opts chat.GenerationOptions) (*Completion, error) {
	resp, err := a.post(ctx, a.client, a.buildRequest(messages, opts, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode anthropic response: %w", err)
	}
	if len(result.Content) == 0 {
		return nil, &RequestError{Provider: "anthropic", Detail: "response contained no content blocks"}
	}

	var text strings.Builder
	for _, block := range result.Content {
		text.WriteString(block.Text)
	}

	return &Completion{
		Content: text.String(),
		Usage: chat.Usage{
			PromptTokens:     result.Usage.InputTokens,
			CompletionTokens: result.Usage.OutputTokens,
			TotalTokens:      result.Usage.InputTokens + result.Usage.OutputTokens,
		},
	}, nil
}

// anthropicStreamEvent covers the union of stream event payloads the adapter
// cares about: message_start, content_block_delta, message_delta, message_stop.
type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// CompleteStream performs a streaming messages call. Input token count arrives
// in message_start and the cumulative output count in message_delta, so the
// single usage event is assembled at message_stop.
func (a *Anthropic) CompleteStream(ctx context.Context, messages []chat.Message, opts chat.GenerationOptions) (<-chan chat.StreamEvent, error) {
	resp, err := a.post(ctx, a.streamClient, a.buildRequest(messages, opts, true))
	if err != nil {
		return nil, err
	}

	events := make(chan chat.StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		var inputTokens, outputTokens int
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "data: ")
			if !ok {
				continue
			}

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue
			}

			switch event.Type {
			case "message_start":
				inputTokens = event.Message.Usage.InputTokens
			case "content_block_delta":
				if event.Delta.Text != "" {
					if !emit(ctx, events, chat.ContentEvent(event.Delta.Text)) {
						return
					}
				}
			case "message_delta":
				outputTokens = event.Usage.OutputTokens
			case "error":
				emit(ctx, events, chat.ErrorEvent("anthropic stream reported an error"))
				return
			}
			if event.Type == "message_stop" {
				break
			}
		}
		if err := scanner.Err(); err != nil {
			emit(ctx, events, chat.ErrorEvent(fmt.Sprintf("anthropic stream read failed: %v", err)))
			return
		}

		emit(ctx, events, chat.UsageEvent(chat.Usage{
			PromptTokens:     inputTokens,
			CompletionTokens: outputTokens,
			TotalTokens:      inputTokens + outputTokens,
		}))
	}()
	return events, nil
}
