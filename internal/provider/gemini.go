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
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta/models"
	geminiDefaultModel = "gemini-flash-latest"
)

var geminiRoles = map[chat.Role]string{
	chat.RoleUser:      "user",
	chat.RoleAssistant: "model",
}

// Gemini calls the generativelanguage REST API directly.
type Gemini struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	streamClient *http.Client
}

func NewGemini(apiKey, baseURL string) *Gemini {
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &Gemini{
		apiKey:       apiKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		client:       &http.Client{Timeout: 60 * time.Second},
		streamClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (a *Gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

func (u geminiUsage) normalize() chat.Usage {
	return chat.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.PromptTokenCount + u.CandidatesTokenCount,
	}
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *geminiUsage `json:"usageMetadata"`
}

func (r geminiResponse) text() string {
	var b strings.Builder
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (a *Gemini) buildRequest(messages []chat.Message, opts chat.GenerationOptions) (geminiRequest, string) {
	opts = opts.WithDefaults()
	model := opts.Model
	if model == "" {
		model = geminiDefaultModel
	}

	system, turns := splitSystem(messages)
	contents := make([]geminiContent, len(turns))
	for i, m := range turns {
		contents[i] = geminiContent{
			Role:  mapRole(geminiRoles, m.Role),
			Parts: []geminiPart{{Text: m.Content}},
		}
	}

	req := geminiRequest{Contents: contents}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	req.GenerationConfig.Temperature = opts.Temperature
	req.GenerationConfig.MaxOutputTokens = opts.MaxTokens
	return req, model
}

func (a *Gemini) post(ctx context.Context, client *http.Client, url string, body geminiRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gemini request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &RequestError{Provider: "gemini", Detail: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, requestError("gemini", resp)
	}
	return resp, nil
}

// Complete performs a buffered generateContent call.
func (a *Gemini) Complete(ctx context.Context, messages []chat.Message, opts chat.GenerationOptions) (*Completion, error) {
	body, model := a.buildRequest(messages, opts)
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", a.baseURL, model, a.apiKey)

	resp, err := a.post(ctx, a.client, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode gemini response: %w", err)
	}
	if len(result.Candidates) == 0 {
		return nil, &RequestError{Provider: "gemini", Detail: "response contained no candidates"}
	}

	completion := &Completion{Content: result.text()}
	if result.UsageMetadata != nil {
		completion.Usage = result.UsageMetadata.normalize()
	}
	return completion, nil
}

// CompleteStream performs a streaming generateContent call. Gemini repeats
// usageMetadata on intermediate chunks, so only the last value is reported,
// once, after all content events.
func (a *Gemini) CompleteStream(ctx context.Context, messages []chat.Message, opts chat.GenerationOptions) (<-chan chat.StreamEvent, error) {
	body, model := a.buildRequest(messages, opts)
	url := fmt.Sprintf("%s/%s:streamGenerateContent?alt=sse&key=%s", a.baseURL, model, a.apiKey)

	resp, err := a.post(ctx, a.streamClient, url, body)
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

			var chunk geminiResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if text := chunk.text(); text != "" {
				if !emit(ctx, events, chat.ContentEvent(text)) {
					return
				}
			}
			if chunk.UsageMetadata != nil {
				normalized := chunk.UsageMetadata.normalize()
				usage = &normalized
			}
		}
		if err := scanner.Err(); err != nil {
			emit(ctx, events, chat.ErrorEvent(fmt.Sprintf("gemini stream read failed: %v", err)))
			return
		}
		if usage != nil {
			emit(ctx, events, chat.UsageEvent(*usage))
		}
	}()
	return events, nil
}
