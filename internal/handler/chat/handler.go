package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/visionfold/bakllava/internal/imaging"
	"github.com/visionfold/bakllava/internal/model/chat"
	chatService "github.com/visionfold/bakllava/internal/service/chat"
	"github.com/visionfold/bakllava/internal/service/session"
	"github.com/visionfold/bakllava/pkg/utils"
)

// maxUploadBytes caps multipart request memory.
const maxUploadBytes = 64 << 20

// Handler exposes the prompt and conversation endpoints.
type Handler struct {
	chatSvc *chatService.Service
	store   *session.Store
}

func New(chatSvc *chatService.Service, store *session.Store) *Handler {
	return &Handler{chatSvc: chatSvc, store: store}
}

// RegisterRoutes mounts the chat endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/text", h.handleText)
	r.Post("/image", h.handleImage)
	r.Post("/video", h.handleVideo)
	r.Post("/conversation/new", h.handleNewConversation)
	r.Get("/conversation/{sessionID}", h.handleGetConversation)
	r.Delete("/conversation/{sessionID}", h.handleDeleteConversation)
}

// handleText serves text-only prompts with optional conversation context.
func (h *Handler) handleText(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Prompt      string   `json:"prompt"`
		Temperature *float64 `json:"temperature"`
		MaxTokens   *int     `json:"max_tokens"`
		SessionID   string   `json:"session_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Prompt == "" {
		utils.RespondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	result := h.chatSvc.CompleteText(r.Context(), chatService.TextRequest{
		SessionID:   payload.SessionID,
		Prompt:      payload.Prompt,
		Temperature: payload.Temperature,
		MaxTokens:   payload.MaxTokens,
	})
	utils.RespondJSON(w, http.StatusOK, result)
}

// handleImage serves prompts carrying a single uploaded image.
func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	prompt := r.FormValue("prompt")
	if prompt == "" {
		utils.RespondError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	temperature, maxTokens, err := parseSamplingForm(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read image file")
		return
	}
	encoded, err := imaging.DecodeToBase64(raw)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, fmt.Sprintf("invalid image file: %v", err))
		return
	}

	result := h.chatSvc.CompleteImage(r.Context(), chatService.ImageRequest{
		SessionID:   r.FormValue("session_id"),
		Prompt:      prompt,
		Image:       encoded,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	utils.RespondJSON(w, http.StatusOK, result)
}

// handleVideo serves prompts carrying multiple uploaded images as video
// frames. Frame-count and decode failures reject the request before any
// session mutation.
func (h *Handler) handleVideo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	prompt := r.FormValue("prompt")
	if prompt == "" {
		utils.RespondError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	temperature, maxTokens, err := parseSamplingForm(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	frameRate := 1.0
	if raw := r.FormValue("frame_rate"); raw != "" {
		frameRate, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, fmt.Sprintf("invalid frame_rate value %q", raw))
			return
		}
	}

	var frames []*multipart.FileHeader
	if r.MultipartForm != nil {
		frames = r.MultipartForm.File["frames"]
	}
	if len(frames) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "no frames provided")
		return
	}
	if len(frames) > chatService.MaxVideoFrames {
		utils.RespondError(w, http.StatusBadRequest, fmt.Sprintf("too many frames (max %d)", chatService.MaxVideoFrames))
		return
	}

	raws := make([][]byte, len(frames))
	for i, header := range frames {
		raw, err := readFrame(header)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, fmt.Sprintf("error processing frame %d: %v", i+1, err))
			return
		}
		raws[i] = raw
	}

	encoded, err := imaging.DecodeFrames(r.Context(), raws)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.chatSvc.CompleteVideo(r.Context(), chatService.VideoRequest{
		SessionID:   r.FormValue("session_id"),
		Prompt:      prompt,
		Frames:      encoded,
		FrameRate:   frameRate,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	utils.RespondJSON(w, http.StatusOK, result)
}

// handleNewConversation explicitly provisions a fresh session.
func (h *Handler) handleNewConversation(w http.ResponseWriter, r *http.Request) {
	id := h.store.ResolveOrCreate("")
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"message":    "New conversation created",
	})
}

// handleGetConversation returns the stored transcript for a session.
func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	sess, err := h.store.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, chat.Transcript{
		SessionID:     sess.ID,
		Messages:      sess.Turns,
		TotalMessages: len(sess.Turns),
	})
}

// handleDeleteConversation removes a session.
func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Conversation %s deleted", id),
	})
}

func parseSamplingForm(r *http.Request) (*float64, *int, error) {
	var temperature *float64
	if raw := r.FormValue("temperature"); raw != "" {
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid temperature value %q", raw)
		}
		temperature = &val
	}

	var maxTokens *int
	if raw := r.FormValue("max_tokens"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid max_tokens value %q", raw)
		}
		maxTokens = &val
	}

	return temperature, maxTokens, nil
}

func readFrame(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
