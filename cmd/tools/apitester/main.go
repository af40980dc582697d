// Command apitester smoke-tests a running API server: health probe, a
// text prompt, and a full conversation round trip with history recall.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"
)

type envelope struct {
	Success        bool    `json:"success"`
	Response       string  `json:"response"`
	Error          string  `json:"error"`
	ProcessingTime float64 `json:"processing_time"`
	SessionID      string  `json:"session_id"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	baseURL := flag.String("addr", "http://localhost:8000", "API server base URL")
	timeout := flag.Duration("timeout", 120*time.Second, "per-request timeout")
	prompt := flag.String("prompt", "Explain what artificial intelligence is in simple terms.", "prompt for the text test")
	flag.Parse()

	client := &http.Client{Timeout: *timeout}
	ctx := context.Background()

	if !checkHealth(ctx, client, *baseURL) {
		log.Fatal("health check failed, is the server running?")
	}
	if !runTextPrompt(ctx, client, *baseURL, *prompt) {
		log.Fatal("text prompt test failed")
	}
	if !runConversationFlow(ctx, client, *baseURL) {
		log.Fatal("conversation flow test failed")
	}

	log.Println("all checks passed")
}

func checkHealth(ctx context.Context, client *http.Client, baseURL string) bool {
	var health struct {
		Status              string `json:"status"`
		Ollama              bool   `json:"ollama"`
		Model               string `json:"model"`
		ActiveConversations int    `json:"active_conversations"`
	}
	if err := getJSON(ctx, client, baseURL+"/health", &health); err != nil {
		log.Printf("health check error: %v", err)
		return false
	}
	log.Printf("health: status=%s ollama=%t model=%s sessions=%d",
		health.Status, health.Ollama, health.Model, health.ActiveConversations)
	return true
}

func runTextPrompt(ctx context.Context, client *http.Client, baseURL, prompt string) bool {
	result, err := postText(ctx, client, baseURL, prompt, "")
	if err != nil {
		log.Printf("text prompt error: %v", err)
		return false
	}
	if !result.Success {
		log.Printf("text prompt failed: %s", result.Error)
		return false
	}
	log.Printf("text prompt ok in %.2fs: %s", result.ProcessingTime, truncate(result.Response, 200))
	return true
}

func runConversationFlow(ctx context.Context, client *http.Client, baseURL string) bool {
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := postJSON(ctx, client, baseURL+"/api/conversation/new", nil, &created); err != nil {
		log.Printf("create conversation error: %v", err)
		return false
	}
	log.Printf("created conversation %s", created.SessionID)

	first, err := postText(ctx, client, baseURL, "Hello! My name is Alice. What's your name?", created.SessionID)
	if err != nil || !first.Success {
		log.Printf("first message failed: %v %s", err, first.Error)
		return false
	}
	log.Printf("first reply: %s", truncate(first.Response, 200))

	second, err := postText(ctx, client, baseURL, "Do you remember my name? What did I tell you earlier?", created.SessionID)
	if err != nil || !second.Success {
		log.Printf("follow-up failed: %v %s", err, second.Error)
		return false
	}
	log.Printf("follow-up reply: %s", truncate(second.Response, 200))

	var transcript struct {
		SessionID     string `json:"session_id"`
		TotalMessages int    `json:"total_messages"`
	}
	if err := getJSON(ctx, client, baseURL+"/api/conversation/"+created.SessionID, &transcript); err != nil {
		log.Printf("get conversation error: %v", err)
		return false
	}
	log.Printf("conversation has %d messages", transcript.TotalMessages)
	return transcript.TotalMessages == 4
}

func postText(ctx context.Context, client *http.Client, baseURL, prompt, sessionID string) (envelope, error) {
	payload := map[string]any{
		"prompt":      prompt,
		"temperature": 0.7,
		"max_tokens":  100,
	}
	if sessionID != "" {
		payload["session_id"] = sessionID
	}
	var result envelope
	err := postJSON(ctx, client, baseURL+"/api/text", payload, &result)
	return result, err
}

func postJSON(ctx context.Context, client *http.Client, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req, out)
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return do(client, req, out)
}

func do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
