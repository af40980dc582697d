package ollama

import "fmt"

// Kind buckets backend failures the way callers need to tell them apart:
// a timed-out round trip, a non-200 answer from Ollama, or a transport
// fault before any answer arrived.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindBackend   Kind = "backend"
	KindTransport Kind = "transport"
)

// Error is a classified generation backend failure.
type Error struct {
	Kind   Kind
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ollama %s error (status %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("ollama %s error: %s", e.Kind, e.Detail)
}
