package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Storage backend names.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Settings holds everything the service reads from its environment.
// Designed for Cloud Run style deployment: all settings come from env
// vars, with an optional config file underneath for local development.
type Settings struct {
	// Google Cloud
	ProjectID         string `envconfig:"GOOGLE_CLOUD_PROJECT"`
	FirestoreDatabase string `envconfig:"FIRESTORE_DATABASE" default:"(default)"`

	// Model
	Model           string  `envconfig:"MODEL_NAME" default:"claude-sonnet-4-5"`
	Temperature     float64 `envconfig:"AGENT_TEMPERATURE" default:"0.0"`
	MaxOutputTokens int     `envconfig:"AGENT_MAX_OUTPUT_TOKENS" default:"4096"`
	RecursionLimit  int     `envconfig:"AGENT_RECURSION_LIMIT" default:"15"`

	// Checkpoint storage
	Backend               string `envconfig:"CHECKPOINT_BACKEND" default:"sqlite"`
	SQLitePath            string `envconfig:"CHECKPOINT_SQLITE_PATH" default:"checkpoints.db"`
	CheckpointsCollection string `envconfig:"CHECKPOINTS_COLLECTION" default:"checkpoints"`
	BlobsCollection       string `envconfig:"BLOBS_COLLECTION" default:"blobs"`
	WritesCollection      string `envconfig:"WRITES_COLLECTION" default:"writes"`

	// BigQuery
	MaxRows int `envconfig:"BQ_MAX_ROWS" default:"50"`

	// Application
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load builds Settings from the environment. An optional config file path
// supplies values for env vars that are unset; pass "" to skip it.
func Load(path string) (Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return Settings{}, fmt.Errorf("process environment: %w", err)
	}

	if path != "" {
		cfg, err := FromFile(path)
		if err != nil {
			return Settings{}, err
		}
		s.applyFile(cfg)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// applyFile overlays file values onto fields whose env var is unset.
func (s *Settings) applyFile(cfg Config) {
	setString := func(envName, key string, dst *string) {
		if _, ok := os.LookupEnv(envName); !ok && cfg.Has(key) {
			*dst = cfg.String(key, *dst)
		}
	}
	setInt := func(envName, key string, dst *int) {
		if _, ok := os.LookupEnv(envName); !ok && cfg.Has(key) {
			*dst = cfg.Int(key, *dst)
		}
	}
	setFloat := func(envName, key string, dst *float64) {
		if _, ok := os.LookupEnv(envName); !ok && cfg.Has(key) {
			*dst = cfg.Float(key, *dst)
		}
	}

	setString("GOOGLE_CLOUD_PROJECT", "project_id", &s.ProjectID)
	setString("FIRESTORE_DATABASE", "firestore_database", &s.FirestoreDatabase)
	setString("MODEL_NAME", "model", &s.Model)
	setFloat("AGENT_TEMPERATURE", "temperature", &s.Temperature)
	setInt("AGENT_MAX_OUTPUT_TOKENS", "max_output_tokens", &s.MaxOutputTokens)
	setInt("AGENT_RECURSION_LIMIT", "recursion_limit", &s.RecursionLimit)
	setString("CHECKPOINT_BACKEND", "backend", &s.Backend)
	setString("CHECKPOINT_SQLITE_PATH", "sqlite_path", &s.SQLitePath)
	setString("CHECKPOINTS_COLLECTION", "checkpoints_collection", &s.CheckpointsCollection)
	setString("BLOBS_COLLECTION", "blobs_collection", &s.BlobsCollection)
	setString("WRITES_COLLECTION", "writes_collection", &s.WritesCollection)
	setInt("BQ_MAX_ROWS", "max_rows", &s.MaxRows)
	setInt("PORT", "port", &s.Port)
	setString("LOG_LEVEL", "log_level", &s.LogLevel)
}

// Validate checks cross-field constraints.
func (s Settings) Validate() error {
	switch s.Backend {
	case BackendMemory, BackendSQLite:
	case BackendFirestore:
		if s.ProjectID == "" {
			return fmt.Errorf("firestore backend requires GOOGLE_CLOUD_PROJECT")
		}
	default:
		return fmt.Errorf("unknown checkpoint backend %q", s.Backend)
	}
	if s.Temperature < 0 || s.Temperature > 1 {
		return fmt.Errorf("temperature %v out of range [0, 1]", s.Temperature)
	}
	if s.RecursionLimit < 1 {
		return fmt.Errorf("recursion limit must be positive, got %d", s.RecursionLimit)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	return nil
}

// SlogLevel parses LogLevel into a slog level, defaulting to info.
func (s Settings) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
