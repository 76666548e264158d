// Package config loads settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything needed to wire an engine.
type Config struct {
	Database  DatabaseConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Sources   SourcesConfig
	Chunking  ChunkingConfig

	CommitIndexTimeout time.Duration
	ExportDir          string // empty disables export
	WorkerConcurrency  int
	RunDefaultTimeout  time.Duration

	LogLevel  string
	LogFormat string
}

// DatabaseConfig selects the database and its pool.
type DatabaseConfig struct {
	URL             string // SQLite path or PostgreSQL DSN
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// LLMConfig configures the generative backend.
type LLMConfig struct {
	Provider    string // "openai" or "gemini"
	OpenAIKey   string
	GeminiKey   string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

// APIKey returns the key of the selected provider.
func (c LLMConfig) APIKey() string {
	if c.Provider == "gemini" {
		return c.GeminiKey
	}
	return c.OpenAIKey
}

// EmbeddingConfig configures the memory index.
type EmbeddingConfig struct {
	Enabled   bool
	Model     string
	Dimension int
}

// SourcesConfig configures channel adapters.
type SourcesConfig struct {
	TranscriptServiceURL string
	TranscriptLanguage   string
	DriveCredentialsFile string
	WebAllowedDomains    []string
	WebDeniedDomains     []string
	WebTimeout           time.Duration
	SourceTimeout        time.Duration
	Concurrency          int
}

// ChunkingConfig sets the chunker bounds, in tokens.
type ChunkingConfig struct {
	MinTokens     int
	MaxTokens     int
	OverlapTokens int
}

// Load reads envFilePath when it is non-empty and exists, then builds the
// config from the environment. Variables already set take precedence over
// the file.
func Load(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", "draftflow.db"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			OpenAIKey:   getEnv("OPENAI_API_KEY", ""),
			GeminiKey:   getEnv("GEMINI_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", ""),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 120*time.Second),
			MaxAttempts: getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
		},
		Embedding: EmbeddingConfig{
			Enabled:   getEnvAsBool("INDEX_ENABLED", false),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: getEnvAsInt("EMBEDDING_DIMENSION", 1536),
		},
		Sources: SourcesConfig{
			TranscriptServiceURL: getEnv("TRANSCRIPT_SERVICE_URL", ""),
			TranscriptLanguage:   getEnv("TRANSCRIPT_LANGUAGE", "en"),
			DriveCredentialsFile: getEnv("GDRIVE_CREDENTIALS_FILE", ""),
			WebAllowedDomains:    getEnvAsList("WEB_ALLOWED_DOMAINS"),
			WebDeniedDomains:     getEnvAsList("WEB_DENIED_DOMAINS"),
			WebTimeout:           getEnvAsDuration("WEB_TIMEOUT", 20*time.Second),
			SourceTimeout:        getEnvAsDuration("SOURCE_TIMEOUT", 60*time.Second),
			Concurrency:          getEnvAsInt("SOURCE_CONCURRENCY", 4),
		},
		Chunking: ChunkingConfig{
			MinTokens:     getEnvAsInt("CHUNK_MIN_TOKENS", 500),
			MaxTokens:     getEnvAsInt("CHUNK_MAX_TOKENS", 1200),
			OverlapTokens: getEnvAsInt("CHUNK_OVERLAP_TOKENS", 100),
		},
		CommitIndexTimeout: getEnvAsDuration("COMMIT_INDEX_TIMEOUT", 30*time.Second),
		ExportDir:          getEnv("EXPORT_DIR", ""),
		WorkerConcurrency:  getEnvAsInt("WORKER_CONCURRENCY", 4),
		RunDefaultTimeout:  getEnvAsDuration("RUN_DEFAULT_TIMEOUT", 24*time.Hour),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("config: LLM_PROVIDER must be openai or gemini, got %q", c.LLM.Provider)
	}
	if c.Chunking.MinTokens <= 0 || c.Chunking.MaxTokens < c.Chunking.MinTokens {
		return fmt.Errorf("config: chunk bounds %d..%d are invalid", c.Chunking.MinTokens, c.Chunking.MaxTokens)
	}
	if c.Chunking.OverlapTokens < 0 || c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return fmt.Errorf("config: CHUNK_OVERLAP_TOKENS must be below CHUNK_MAX_TOKENS")
	}
	if c.Embedding.Enabled && c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: EMBEDDING_DIMENSION must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
