package chat

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message within a session. Turns are append-only and
// never modified after insertion, with one exception: the store may drop
// the raw image payloads of old turns to bound memory, keeping HadImages
// so rendered history still reflects that an image was attached.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"content"`
	Images    []string  `json:"images,omitempty"`
	HadImages bool      `json:"had_images,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}

// WithImages reports whether the turn carried images when it was appended,
// even if their payloads have since been evicted.
func (t Turn) WithImages() bool {
	return t.HadImages || len(t.Images) > 0
}
