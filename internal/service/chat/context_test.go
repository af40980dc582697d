package chat_test

import (
	"strings"
	"testing"

	chatmodel "github.com/visionfold/bakllava/internal/model/chat"
	chat "github.com/visionfold/bakllava/internal/service/chat"
)

func TestBuildContextEmptyHistoryIdentity(t *testing.T) {
	got := chat.BuildContext(chatmodel.Session{}, "What is the capital of France?")
	if got != "What is the capital of France?" {
		t.Fatalf("empty history must return input unchanged, got %q", got)
	}
}

func TestBuildContextFormat(t *testing.T) {
	session := chatmodel.Session{
		Turns: []chatmodel.Turn{
			{Role: chatmodel.RoleUser, Text: "What do you see?", Images: []string{"blob"}},
			{Role: chatmodel.RoleAssistant, Text: "A boardwalk over a marsh."},
		},
	}

	got := chat.BuildContext(session, "What season is it?")
	want := "This is a conversation. Here's the conversation history:\n\n" +
		"Human: What do you see? [with image(s)]\n\n" +
		"Assistant: A boardwalk over a marsh.\n\n" +
		"Human: What season is it?\n\n" +
		"Assistant:"
	if got != want {
		t.Fatalf("rendered context mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestBuildContextWindowKeepsMostRecentTen(t *testing.T) {
	var turns []chatmodel.Turn
	for i := 0; i < 15; i++ {
		turns = append(turns, chatmodel.Turn{Role: chatmodel.RoleUser, Text: "turn-" + string(rune('a'+i))})
	}

	got := chat.BuildContext(chatmodel.Session{Turns: turns}, "latest")

	if strings.Contains(got, "turn-a") || strings.Contains(got, "turn-e") {
		t.Fatal("oldest turns must be dropped from the window")
	}
	if !strings.Contains(got, "turn-f") || !strings.Contains(got, "turn-o") {
		t.Fatal("the most recent 10 turns must all be present")
	}
	// Oldest-first order within the window.
	if strings.Index(got, "turn-f") > strings.Index(got, "turn-o") {
		t.Fatal("window must preserve chronological order")
	}
}

func TestBuildContextImageMarkerSurvivesEviction(t *testing.T) {
	session := chatmodel.Session{
		Turns: []chatmodel.Turn{
			{Role: chatmodel.RoleUser, Text: "old image turn", HadImages: true},
		},
	}

	got := chat.BuildContext(session, "and now?")
	if !strings.Contains(got, "Human: old image turn [with image(s)]") {
		t.Fatalf("evicted image turn lost its marker:\n%s", got)
	}
	if strings.Contains(got, "payload") {
		t.Fatal("image payloads must never appear in rendered context")
	}
}
