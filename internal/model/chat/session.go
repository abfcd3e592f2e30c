package chat

import "time"

// Session is a persisted, append-only conversation record. Messages never
// shrink or reorder; UpdatedAt advances with every append.
type Session struct {
	ID        string    `json:"id"`
	Owner     string    `json:"-"`
	Repo      string    `json:"repo"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionSummary is the list-view projection of a session: no transcript,
// just a bounded preview of the opening message.
type SessionSummary struct {
	ID        string    `json:"id"`
	Repo      string    `json:"repo"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
