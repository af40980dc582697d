package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/visionfold/bakllava/internal/handler/chat"
	"github.com/visionfold/bakllava/internal/handler/stream"
	chatService "github.com/visionfold/bakllava/internal/service/chat"
	"github.com/visionfold/bakllava/internal/service/session"
	"github.com/visionfold/bakllava/pkg/utils"
)

const apiVersion = "1.1.0"

// Backend is the slice of the generation client the info endpoints need.
type Backend interface {
	Health(ctx context.Context) bool
	Model() string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(store *session.Store, chatSvc *chatService.Service, backend Backend) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	chatHandler := chat.New(chatSvc, store)
	streamHandler := stream.New(chatSvc)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"message":  "Bakllava 7B API Server",
			"version":  apiVersion,
			"features": []string{"text", "images", "video", "conversations", "streaming"},
			"endpoints": map[string]string{
				"text":             "/api/text",
				"image":            "/api/image",
				"video":            "/api/video",
				"stream":           "/api/stream/{session_id}",
				"conversation":     "/api/conversation/{session_id}",
				"new_conversation": "/api/conversation/new",
				"health":           "/health",
			},
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		healthy := backend.Health(r.Context())
		status := "healthy"
		if !healthy {
			status = "unhealthy"
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":               status,
			"ollama":               healthy,
			"model":                backend.Model(),
			"active_conversations": store.Count(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	return r
}
