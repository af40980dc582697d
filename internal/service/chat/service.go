package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/visionfold/bakllava/internal/model/chat"
	"github.com/visionfold/bakllava/internal/service/ollama"
	"github.com/visionfold/bakllava/internal/service/session"
)

// MaxVideoFrames caps multi-frame requests to keep memory bounded.
const MaxVideoFrames = 30

var ErrFrameCount = errors.New("frame count must be between 1 and 30")

// Generator is the generation backend the service depends on.
type Generator interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (string, error)
}

// Streamer is the optional streaming side of a backend.
type Streamer interface {
	GenerateStream(ctx context.Context, req ollama.GenerateRequest, fn func(chunk string) error) error
}

// Config carries the sampling defaults applied when a request omits them.
type Config struct {
	Temperature float64
	MaxTokens   int
}

// Service orchestrates the conversation lifecycle around every request:
// resolve or create the session, render the bounded context, append the
// user turn, call the backend, append the assistant turn. Any failure
// after resolution becomes a structured Result; the user turn is never
// rolled back, so a failed generation leaves it recorded with no matching
// reply.
type Service struct {
	store *session.Store
	gen   Generator
	cfg   Config
}

func NewService(store *session.Store, gen Generator, cfg Config) *Service {
	return &Service{store: store, gen: gen, cfg: cfg}
}

// TextRequest is a text-only prompt turn.
type TextRequest struct {
	SessionID   string
	Prompt      string
	Temperature *float64
	MaxTokens   *int
}

// ImageRequest is a prompt turn carrying one encoded image.
type ImageRequest struct {
	SessionID   string
	Prompt      string
	Image       string
	Temperature *float64
	MaxTokens   *int
}

// VideoRequest is a prompt turn carrying an ordered set of encoded frames.
type VideoRequest struct {
	SessionID   string
	Prompt      string
	Frames      []string
	FrameRate   float64
	Temperature *float64
	MaxTokens   *int
}

// CompleteText handles a text-only prompt with conversation context.
func (s *Service) CompleteText(ctx context.Context, req TextRequest) chat.Result {
	return s.complete(ctx, req.SessionID, req.Prompt, nil, req.Temperature, req.MaxTokens)
}

// CompleteImage handles a prompt with a single image.
func (s *Service) CompleteImage(ctx context.Context, req ImageRequest) chat.Result {
	return s.complete(ctx, req.SessionID, req.Prompt, []string{req.Image}, req.Temperature, req.MaxTokens)
}

// CompleteVideo handles a prompt with multiple images as video frames. The
// prompt is annotated with the frame count and rate before rendering. An
// out-of-range frame count is rejected before any session mutation.
func (s *Service) CompleteVideo(ctx context.Context, req VideoRequest) chat.Result {
	start := time.Now()

	if len(req.Frames) == 0 || len(req.Frames) > MaxVideoFrames {
		return chat.Result{
			Success:        false,
			Error:          ErrFrameCount.Error(),
			ProcessingTime: time.Since(start).Seconds(),
			SessionID:      req.SessionID,
		}
	}

	annotated := fmt.Sprintf(
		"%s\n\nThis is a sequence of %d video frames captured at %g frame(s) per second.",
		req.Prompt, len(req.Frames), req.FrameRate,
	)
	return s.complete(ctx, req.SessionID, annotated, req.Frames, req.Temperature, req.MaxTokens)
}

// StreamText follows the same lifecycle protocol as CompleteText but
// streams chunks through fn as they arrive. The assistant turn appended at
// the end is the concatenation of all chunks.
func (s *Service) StreamText(ctx context.Context, req TextRequest, fn func(chunk string) error) chat.Result {
	start := time.Now()

	streamer, ok := s.gen.(Streamer)
	if !ok {
		return s.failure(start, req.SessionID, errors.New("streaming unsupported by backend"))
	}

	id := s.store.ResolveOrCreate(req.SessionID)

	sess, err := s.store.Get(id)
	if err != nil {
		return s.failure(start, id, fmt.Errorf("resolved session vanished: %w", err))
	}

	prompt := BuildContext(sess, req.Prompt)

	if err := s.store.Append(id, chat.Turn{Role: chat.RoleUser, Text: req.Prompt}); err != nil {
		return s.failure(start, id, err)
	}

	var full strings.Builder
	err = streamer.GenerateStream(ctx, s.generateRequest(prompt, nil, req.Temperature, req.MaxTokens), func(chunk string) error {
		full.WriteString(chunk)
		return fn(chunk)
	})
	if err != nil {
		return s.failure(start, id, err)
	}

	if err := s.store.Append(id, chat.Turn{Role: chat.RoleAssistant, Text: full.String()}); err != nil {
		return s.failure(start, id, err)
	}

	return chat.Result{
		Success:        true,
		Response:       full.String(),
		ProcessingTime: time.Since(start).Seconds(),
		SessionID:      id,
	}
}

func (s *Service) complete(ctx context.Context, requestedID, userText string, images []string, temperature *float64, maxTokens *int) chat.Result {
	start := time.Now()

	id := s.store.ResolveOrCreate(requestedID)

	sess, err := s.store.Get(id)
	if err != nil {
		// Post-condition of ResolveOrCreate; only a deletion racing the
		// resolution can land here.
		return s.failure(start, id, fmt.Errorf("resolved session vanished: %w", err))
	}

	prompt := BuildContext(sess, userText)

	if err := s.store.Append(id, chat.Turn{Role: chat.RoleUser, Text: userText, Images: images}); err != nil {
		return s.failure(start, id, err)
	}

	// The backend round trip happens with no store lock held. Only the
	// current turn's images are forwarded; history contributes text only.
	text, err := s.gen.Generate(ctx, s.generateRequest(prompt, images, temperature, maxTokens))
	if err != nil {
		// The user turn stays recorded with no matching reply.
		return s.failure(start, id, err)
	}

	if err := s.store.Append(id, chat.Turn{Role: chat.RoleAssistant, Text: text}); err != nil {
		return s.failure(start, id, err)
	}

	return chat.Result{
		Success:        true,
		Response:       text,
		ProcessingTime: time.Since(start).Seconds(),
		SessionID:      id,
	}
}

func (s *Service) generateRequest(prompt string, images []string, temperature *float64, maxTokens *int) ollama.GenerateRequest {
	req := ollama.GenerateRequest{
		Prompt:      prompt,
		Images:      images,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}
	if temperature != nil {
		req.Temperature = *temperature
	}
	if maxTokens != nil {
		req.MaxTokens = *maxTokens
	}
	return req
}

func (s *Service) failure(start time.Time, id string, err error) chat.Result {
	log.Printf("[chat] completion failed for session=%s: %v", id, err)
	return chat.Result{
		Success:        false,
		Error:          err.Error(),
		ProcessingTime: time.Since(start).Seconds(),
		SessionID:      id,
	}
}
