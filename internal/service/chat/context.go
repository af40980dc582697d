package chat

import (
	"fmt"
	"strings"

	"github.com/visionfold/bakllava/internal/model/chat"
)

// HistoryWindow is the number of most recent turns included when rendering
// a prompt. Windowing drops the oldest turns first, keeping prompts within
// the backend's token limits.
const HistoryWindow = 10

const contextPreamble = "This is a conversation. Here's the conversation history:"

// BuildContext renders a session's history plus the new user turn into a
// single prompt string. A session with no history returns newText
// unchanged, so single-turn calls carry no boilerplate. Pure: the session
// is never mutated, and the image content of past turns is never
// re-included — only a textual marker survives.
func BuildContext(session chat.Session, newText string) string {
	turns := session.Turns
	if len(turns) == 0 {
		return newText
	}
	if len(turns) > HistoryWindow {
		turns = turns[len(turns)-HistoryWindow:]
	}

	parts := make([]string, 0, len(turns)+3)
	parts = append(parts, contextPreamble)
	for _, turn := range turns {
		speaker := "Human"
		if turn.Role == chat.RoleAssistant {
			speaker = "Assistant"
		}
		line := fmt.Sprintf("%s: %s", speaker, turn.Text)
		if turn.WithImages() {
			line += " [with image(s)]"
		}
		parts = append(parts, line)
	}
	parts = append(parts, "Human: "+newText, "Assistant:")

	return strings.Join(parts, "\n\n")
}
