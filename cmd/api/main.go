package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/visionfold/bakllava/internal/config"
	"github.com/visionfold/bakllava/internal/handler"
	chatservice "github.com/visionfold/bakllava/internal/service/chat"
	"github.com/visionfold/bakllava/internal/service/ollama"
	"github.com/visionfold/bakllava/internal/service/session"
)

const (
	startupRetries       = 30
	startupRetryInterval = 2 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store := session.NewStore(cfg.Session.TTL, cfg.Session.ImageRetain)
	backend := ollama.NewClient(ollama.Config{
		BaseURL: cfg.Backend.BaseURL,
		Model:   cfg.Backend.Model,
		Timeout: cfg.Backend.Timeout,
	})

	if !waitForBackend(ctx, backend) {
		if ctx.Err() != nil {
			return
		}
		log.Fatalf("ollama service is not responding after %d attempts", startupRetries)
	}
	if err := backend.EnsureModel(ctx); err != nil {
		log.Printf("warning: model may not be available, but continuing: %v", err)
	}

	chatSvc := chatservice.NewService(store, backend, chatservice.Config{
		Temperature: cfg.Backend.Temperature,
		MaxTokens:   cfg.Backend.MaxTokens,
	})

	go sweepLoop(ctx, store, cfg.Session.SweepInterval)

	router := handler.NewRouter(store, chatSvc, backend)

	startServer(ctx, cfg.Server, router)
}

// waitForBackend polls the backend until it answers or the retries run out.
func waitForBackend(ctx context.Context, backend *ollama.Client) bool {
	for i := 0; i < startupRetries; i++ {
		if backend.Health(ctx) {
			log.Println("ollama service is ready")
			return true
		}
		log.Printf("waiting for ollama service... (%d/%d)", i+1, startupRetries)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(startupRetryInterval):
		}
	}
	return false
}

// sweepLoop drives the periodic expiry sweep until shutdown.
func sweepLoop(ctx context.Context, store *session.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := store.SweepExpired(); removed > 0 {
				log.Printf("[session] sweep removed %d expired sessions", removed)
			}
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Bakllava API server listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
