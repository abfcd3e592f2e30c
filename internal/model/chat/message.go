package chat

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged utterance in a conversation. Messages are
// immutable once appended to a session.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
