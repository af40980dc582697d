package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/visionfold/bakllava/internal/service/ollama"
)

func newTestClient(baseURL string, timeout time.Duration) *ollama.Client {
	return ollama.NewClient(ollama.Config{
		BaseURL: baseURL,
		Model:   "bakllava",
		Timeout: timeout,
	})
}

func TestGenerateSuccess(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "a scenic boardwalk", "done": true})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	text, err := client.Generate(context.Background(), ollama.GenerateRequest{
		Prompt:      "describe the image",
		Images:      []string{"aGVsbG8="},
		Temperature: 0.7,
		MaxTokens:   128,
	})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if text != "a scenic boardwalk" {
		t.Fatalf("unexpected text %q", text)
	}

	if captured["model"] != "bakllava" {
		t.Fatalf("model not forwarded: %v", captured["model"])
	}
	if captured["stream"] != false {
		t.Fatal("expected stream=false")
	}
	images, ok := captured["images"].([]any)
	if !ok || len(images) != 1 {
		t.Fatalf("images not forwarded: %v", captured["images"])
	}
	options, ok := captured["options"].(map[string]any)
	if !ok || options["num_predict"] != float64(128) {
		t.Fatalf("options not forwarded: %v", captured["options"])
	}
}

func TestGenerateEmptyResponseFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"done": true})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	text, err := client.Generate(context.Background(), ollama.GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if text != "No response generated" {
		t.Fatalf("unexpected fallback text %q", text)
	}
}

func TestGenerateBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	_, err := client.Generate(context.Background(), ollama.GenerateRequest{Prompt: "hi"})

	var backendErr *ollama.Error
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected *ollama.Error, got %T", err)
	}
	if backendErr.Kind != ollama.KindBackend {
		t.Fatalf("expected backend kind, got %s", backendErr.Kind)
	}
	if backendErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", backendErr.Status)
	}
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 50*time.Millisecond)
	_, err := client.Generate(context.Background(), ollama.GenerateRequest{Prompt: "hi"})

	var backendErr *ollama.Error
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected *ollama.Error, got %T", err)
	}
	if backendErr.Kind != ollama.KindTimeout {
		t.Fatalf("expected timeout kind, got %s", backendErr.Kind)
	}
}

func TestGenerateTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := newTestClient(srv.URL, time.Second)
	_, err := client.Generate(context.Background(), ollama.GenerateRequest{Prompt: "hi"})

	var backendErr *ollama.Error
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected *ollama.Error, got %T", err)
	}
	if backendErr.Kind != ollama.KindTransport {
		t.Fatalf("expected transport kind, got %s", backendErr.Kind)
	}
}

func TestGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != true {
			t.Error("expected stream=true")
		}
		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]any{"response": "Hello", "done": false})
		_ = enc.Encode(map[string]any{"response": " world", "done": false})
		_ = enc.Encode(map[string]any{"response": "", "done": true})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)

	var got string
	err := client.GenerateStream(context.Background(), ollama.GenerateRequest{Prompt: "hi"}, func(chunk string) error {
		got += chunk
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream err: %v", err)
	}
	if got != "Hello world" {
		t.Fatalf("unexpected streamed text %q", got)
	}
}

func TestEnsureModelAlreadyPresent(t *testing.T) {
	pulled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]string{{"name": "bakllava:latest"}},
			})
		case "/api/pull":
			pulled = true
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	if err := client.EnsureModel(context.Background()); err != nil {
		t.Fatalf("EnsureModel err: %v", err)
	}
	if pulled {
		t.Fatal("should not pull a model that is already present")
	}
}

func TestEnsureModelPullsWhenMissing(t *testing.T) {
	pulled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(map[string]any{"models": []map[string]string{}})
		case "/api/pull":
			pulled = true
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "success"})
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	if err := client.EnsureModel(context.Background()); err != nil {
		t.Fatalf("EnsureModel err: %v", err)
	}
	if !pulled {
		t.Fatal("expected a pull for the missing model")
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
	}))

	client := newTestClient(srv.URL, time.Second)
	if !client.Health(context.Background()) {
		t.Fatal("expected healthy backend")
	}

	srv.Close()
	if client.Health(context.Background()) {
		t.Fatal("expected unhealthy backend after shutdown")
	}
}
