package chat

import "time"

// Session captures one ongoing conversation keyed by an opaque identifier.
type Session struct {
	ID           string    `json:"session_id"`
	Turns        []Turn    `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_activity"`
}

// Transcript is the wire view of a conversation returned by the
// introspection endpoints.
type Transcript struct {
	SessionID     string `json:"session_id"`
	Messages      []Turn `json:"messages"`
	TotalMessages int    `json:"total_messages"`
}
