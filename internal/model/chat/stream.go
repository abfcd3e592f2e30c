package chat

// GenerationOptions are pass-through sampling parameters. When Model is empty
// the adapter's provider-specific default applies.
type GenerationOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Defaults mirrored from the upstream provider SDKs.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096
)

// WithDefaults fills unset sampling parameters.
func (o GenerationOptions) WithDefaults() GenerationOptions {
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

// Usage is token accounting for one completed turn.
// Invariant: TotalTokens == PromptTokens + CompletionTokens.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamEvent is one element of a streaming completion: a content delta, a
// cumulative usage report, a terminal error, or the terminal done sentinel.
// Exactly one Done (or error with Done set) ends every stream.
type StreamEvent struct {
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Usage     *Usage `json:"usage,omitempty"`
	Error     string `json:"error,omitempty"`
	Done      bool   `json:"done,omitempty"`
}

// ContentEvent builds a content delta event.
func ContentEvent(text string) StreamEvent { return StreamEvent{Content: text} }

// UsageEvent builds a usage report event.
func UsageEvent(u Usage) StreamEvent { return StreamEvent{Usage: &u} }

// ErrorEvent builds a terminal error event.
func ErrorEvent(msg string) StreamEvent { return StreamEvent{Error: msg, Done: true} }

// DoneEvent is the terminal sentinel closing a successful stream.
func DoneEvent() StreamEvent { return StreamEvent{Done: true} }
