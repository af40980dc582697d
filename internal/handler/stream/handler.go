package stream

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/visionfold/bakllava/internal/service/chat"
	"github.com/visionfold/bakllava/pkg/utils"
)

// Handler streams generated responses over Server-Sent Events, following
// the same conversation lifecycle as the non-streaming endpoints.
type Handler struct {
	chatSvc *chatService.Service
}

func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// Response is one streamed SSE chunk.
type Response struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RegisterRoutes mounts the streaming endpoint on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	// An unknown or expired id falls back to a fresh session, same as the
	// non-streaming endpoints; the start event carries the resolved id.
	requestedID := chi.URLParam(r, "sessionID")

	result := h.chatSvc.StreamText(r.Context(), chatService.TextRequest{
		SessionID: requestedID,
		Prompt:    message,
	}, func(chunk string) error {
		utils.SendSSEChunk(w, flusher, Response{Event: "message", Content: chunk})
		return nil
	})

	if !result.Success {
		utils.SendSSEChunk(w, flusher, Response{
			Event:     "error",
			SessionID: result.SessionID,
			Error:     result.Error,
		})
		log.Printf("[stream] generation failed for session=%s: %s", result.SessionID, result.Error)
		return
	}

	utils.SendSSEChunk(w, flusher, Response{
		Event:     "end",
		SessionID: result.SessionID,
		Content:   fmt.Sprintf("%.2fs", result.ProcessingTime),
		Finished:  true,
	})
	log.Printf("[stream] completed response for session=%s", result.SessionID)
}
