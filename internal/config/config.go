package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting the server needs.
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Session SessionConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Backend: backend, Session: session}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8000" or "127.0.0.1:8000" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// BackendConfig describes the Ollama generation backend and the sampling
// defaults applied when a request omits them.
type BackendConfig struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

func loadBackendConfig() (BackendConfig, error) {
	timeoutSeconds := 60
	if override, err := parseOptionalIntEnv("GEN_TIMEOUT"); err != nil {
		return BackendConfig{}, err
	} else if override != nil {
		timeoutSeconds = *override
	}

	temperature := 0.7
	if override, err := parseOptionalFloatEnv("GEN_TEMPERATURE"); err != nil {
		return BackendConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	maxTokens := 2048
	if override, err := parseOptionalIntEnv("GEN_MAX_TOKENS"); err != nil {
		return BackendConfig{}, err
	} else if override != nil {
		maxTokens = *override
	}

	return BackendConfig{
		BaseURL:     getEnvOrDefault("OLLAMA_BASE_URL", "http://localhost:11434"),
		Model:       getEnvOrDefault("MODEL_NAME", "bakllava"),
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// SessionConfig describes the conversation store's lifecycle knobs.
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	// ImageRetain is how many of a session's most recent turns keep their
	// raw image payloads; older turns keep only a marker.
	ImageRetain int
}

func loadSessionConfig() (SessionConfig, error) {
	ttlHours := 24
	if override, err := parseOptionalIntEnv("SESSION_TTL"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SessionConfig{}, fmt.Errorf("SESSION_TTL must be at least 1 hour, got %d", *override)
		}
		ttlHours = *override
	}

	sweepMinutes := 10
	if override, err := parseOptionalIntEnv("SESSION_SWEEP_INTERVAL"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SessionConfig{}, fmt.Errorf("SESSION_SWEEP_INTERVAL must be at least 1 minute, got %d", *override)
		}
		sweepMinutes = *override
	}

	imageRetain := 10
	if override, err := parseOptionalIntEnv("SESSION_IMAGE_RETAIN"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		imageRetain = *override
	}

	return SessionConfig{
		TTL:           time.Duration(ttlHours) * time.Hour,
		SweepInterval: time.Duration(sweepMinutes) * time.Minute,
		ImageRetain:   imageRetain,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
