package chat

// Result is the uniform envelope returned by every generation endpoint.
// Failures travel inside the envelope rather than aborting the response;
// only structurally invalid input is rejected before a Result exists.
type Result struct {
	Success        bool    `json:"success"`
	Response       string  `json:"response,omitempty"`
	Error          string  `json:"error,omitempty"`
	ProcessingTime float64 `json:"processing_time"`
	SessionID      string  `json:"session_id,omitempty"`
}
