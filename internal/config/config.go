package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "oishii.db"
	defaultUploadDir     = "uploads"
	defaultFlowURL       = "https://api.langflow.astra.datastax.com"
	defaultSweepInterval = 15 * time.Minute

	envListenAddr      = "OISHII_LISTEN_ADDR"
	envDBPath          = "OISHII_DB_PATH"
	envLogLevel        = "OISHII_LOG_LEVEL"
	envUploadDir       = "OISHII_UPLOAD_DIR"
	envAuthURL         = "OISHII_AUTH_URL"
	envAuthAnonKey     = "OISHII_AUTH_ANON_KEY"
	envAuthJWTSecret   = "OISHII_AUTH_JWT_SECRET"
	envFlowURL         = "OISHII_FLOW_URL"
	envFlowID          = "OISHII_FLOW_ID"
	envFlowWorkspaceID = "OISHII_FLOW_WORKSPACE_ID"
	envFlowToken       = "OISHII_FLOW_TOKEN"
	envFlowRefresh     = "OISHII_FLOW_REFRESH_TOKEN"
	envSweepInterval   = "OISHII_SWEEP_INTERVAL"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	UploadDir  string

	// Hosted auth provider.
	AuthURL       string
	AuthAnonKey   string
	AuthJWTSecret string

	// Hosted AI flow service.
	FlowURL          string
	FlowID           string
	FlowWorkspaceID  string
	FlowToken        string
	FlowRefreshToken string

	// Expiry sweeper.
	SweepInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DBPath:        defaultDBPath,
		LogLevel:      slog.LevelInfo,
		UploadDir:     defaultUploadDir,
		FlowURL:       defaultFlowURL,
		SweepInterval: defaultSweepInterval,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envUploadDir); v != "" {
		cfg.UploadDir = v
	}

	cfg.AuthURL = os.Getenv(envAuthURL)
	cfg.AuthAnonKey = os.Getenv(envAuthAnonKey)
	cfg.AuthJWTSecret = os.Getenv(envAuthJWTSecret)

	if v := os.Getenv(envFlowURL); v != "" {
		cfg.FlowURL = v
	}
	cfg.FlowID = os.Getenv(envFlowID)
	cfg.FlowWorkspaceID = os.Getenv(envFlowWorkspaceID)
	cfg.FlowToken = os.Getenv(envFlowToken)
	cfg.FlowRefreshToken = os.Getenv(envFlowRefresh)

	if v := os.Getenv(envSweepInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SweepInterval = d
		}
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
