package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:11434"
	pullTimeout    = 5 * time.Minute
	probeTimeout   = 5 * time.Second
)

// Config describes how to reach the Ollama backend.
type Config struct {
	BaseURL string
	Model   string
	// Timeout bounds every generation round trip.
	Timeout time.Duration
}

// Client talks to Ollama's native HTTP API.
type Client struct {
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    base,
		model:      cfg.Model,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// GenerateRequest carries one prompt to the backend. Images are base64
// encoded blobs attached to the current turn only.
type GenerateRequest struct {
	Prompt      string
	Images      []string
	Temperature float64
	MaxTokens   int
}

// Generate runs a non-streaming completion and returns the generated text.
// Failures come back as *Error with the kind set.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.postGenerate(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Error{Kind: KindTransport, Detail: "decode response: " + err.Error()}
	}
	if out.Response == "" {
		return "No response generated", nil
	}
	return out.Response, nil
}

// GenerateStream runs a streaming completion, invoking fn for every text
// chunk as it arrives. Returning an error from fn aborts the stream.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest, fn func(chunk string) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.postGenerate(ctx, req, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var chunk struct {
			Response string `json:"response"`
			Done     bool   `json:"done"`
		}
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return classify(err)
		}
		if chunk.Response != "" {
			if err := fn(chunk.Response); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
}

func (c *Client) postGenerate(ctx context.Context, req GenerateRequest, stream bool) (*http.Response, error) {
	payload := map[string]any{
		"model":  c.model,
		"prompt": req.Prompt,
		"stream": stream,
		"options": map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}
	if len(req.Images) > 0 {
		payload["images"] = req.Images
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Detail: "marshal request: " + err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Detail: "create request: " + err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classify(err)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &Error{
			Kind:   KindBackend,
			Status: resp.StatusCode,
			Detail: strings.TrimSpace(string(detail)),
		}
	}
	return resp, nil
}

// Health probes the backend the way the tags listing does and reports
// whether it answered.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// EnsureModel checks the local model list and pulls the configured model
// when it is missing. Pulling can take minutes on first run.
func (c *Client) EnsureModel(ctx context.Context) error {
	present, err := c.hasModel(ctx)
	if err != nil {
		return err
	}
	if present {
		log.Printf("[ollama] model %s is already available", c.model)
		return nil
	}

	log.Printf("[ollama] pulling model %s...", c.model)

	pullCtx, cancel := context.WithTimeout(ctx, pullTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"name": c.model})
	if err != nil {
		return fmt.Errorf("marshal pull request: %w", err)
	}
	req, err := http.NewRequestWithContext(pullCtx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return &Error{Kind: KindBackend, Status: resp.StatusCode, Detail: strings.TrimSpace(string(detail))}
	}

	// Drain the pull progress stream so the request completes.
	_, _ = io.Copy(io.Discard, resp.Body)
	log.Printf("[ollama] model %s pulled successfully", c.model)
	return nil
}

func (c *Client) hasModel(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("create tags request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return false, &Error{Kind: KindBackend, Status: resp.StatusCode, Detail: strings.TrimSpace(string(detail))}
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, &Error{Kind: KindTransport, Detail: "decode tags: " + err.Error()}
	}

	for _, m := range tags.Models {
		if strings.Contains(m.Name, c.model) {
			return true, nil
		}
	}
	return false, nil
}

// classify maps a round-trip error onto the failure taxonomy.
func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Detail: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Detail: err.Error()}
	}
	return &Error{Kind: KindTransport, Detail: err.Error()}
}
