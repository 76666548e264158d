package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "draftflow.db", cfg.Database.URL)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	assert.False(t, cfg.Embedding.Enabled)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 500, cfg.Chunking.MinTokens)
	assert.Equal(t, 30*time.Second, cfg.CommitIndexTimeout)
	assert.Empty(t, cfg.Sources.WebDeniedDomains)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("LLM_TIMEOUT", "45")
	t.Setenv("SOURCE_TIMEOUT", "2m")
	t.Setenv("INDEX_ENABLED", "true")
	t.Setenv("WEB_DENIED_DOMAINS", "Example.com, ,tracker.io")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "g-key", cfg.LLM.APIKey())
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Sources.SourceTimeout)
	assert.True(t, cfg.Embedding.Enabled)
	assert.Equal(t, []string{"example.com", "tracker.io"}, cfg.Sources.WebDeniedDomains)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("EXPORT_DIR=/tmp/draftflow-export\nLOG_FORMAT=text\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("EXPORT_DIR")
		os.Unsetenv("LOG_FORMAT")
	})
	// Values already in the environment win over the file.
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/draftflow-export", cfg.ExportDir)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown provider", "LLM_PROVIDER", "mistral"},
		{"max below min", "CHUNK_MAX_TOKENS", "100"},
		{"overlap too large", "CHUNK_OVERLAP_TOKENS", "5000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
