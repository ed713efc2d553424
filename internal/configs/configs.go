/*
Package configs is responsible for loading and parsing the application's configuration.

Settings are read from operating system environment variables with sensible
development defaults: backend base URLs and timeouts for the client, and server
parameters (port, JWT secret, CORS origins) for the simulated backend.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ClientConfig contains the parameters the lobby client needs to reach a backend.
type ClientConfig struct {
	// Environment selects log verbosity and format ("development" or "production").
	Environment string

	// APIBaseURL is the REST base, e.g. "http://localhost:8001".
	APIBaseURL string

	// WSBaseURL is the realtime base, e.g. "ws://localhost:8001".
	WSBaseURL string

	// HTTPTimeout bounds every REST call.
	HTTPTimeout time.Duration

	// ConnectTimeout bounds a single websocket dial attempt.
	ConnectTimeout time.Duration

	// TokenPath is the file the persisted TokenPair is kept in.
	// Empty selects a default under the user config directory.
	TokenPath string
}

// SimConfig contains the parameters for the simulated backend.
type SimConfig struct {
	Environment    string
	Port           int
	JWTSecret      string
	AllowedOrigins []string
}

// LoadClientConfig reads the client configuration from environment variables.
func LoadClientConfig() (*ClientConfig, error) {
	cfg := &ClientConfig{}

	cfg.Environment = os.Getenv("LOBBYHUB_ENV")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.APIBaseURL = os.Getenv("LOBBYHUB_API_URL")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8001"
	}

	cfg.WSBaseURL = os.Getenv("LOBBYHUB_WS_URL")
	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = strings.Replace(cfg.APIBaseURL, "http", "ws", 1)
	}

	timeout, err := durationFromEnv("LOBBYHUB_HTTP_TIMEOUT_SECONDS", 15*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = timeout

	connectTimeout, err := durationFromEnv("LOBBYHUB_CONNECT_TIMEOUT_SECONDS", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.ConnectTimeout = connectTimeout

	cfg.TokenPath = os.Getenv("LOBBYHUB_TOKEN_PATH")

	return cfg, nil
}

// LoadSimConfig reads the simulated backend configuration from environment variables.
func LoadSimConfig() (*SimConfig, error) {
	cfg := &SimConfig{}

	cfg.Environment = os.Getenv("LOBBYHUB_ENV")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8001"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	if port < 1024 || port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the allowed range (1024-65535)", port)
	}
	cfg.Port = port

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		if cfg.Environment != "development" {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment", cfg.Environment)
		}
		cfg.JWTSecret = "your_default_insecure_secret_key_change_me"
	}

	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{}
	}

	return cfg, nil
}

// durationFromEnv reads a positive number of seconds from the named variable.
func durationFromEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("invalid %s environment variable: %q", name, raw)
	}

	return time.Duration(seconds) * time.Second, nil
}
