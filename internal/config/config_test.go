package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	cfgPath := writeConfig(t, `
model:
  provider: openai
  max_tokens: 1000
  temperature: 0.4
  openai:
    model: gpt-4o-mini
embedding:
  provider: openai
  model: text-embedding-3-small
  batch_size: 16
qdrant:
  host: qdrant.internal
  port: 6334
  collection: qa_pairs
rag:
  top_k: 8
  similarity_threshold: 0.35
  streaming: true
database:
  path: /data/qa_database.db
logging:
  level: debug
  format: text
`)

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE",
		"OPENAI_MODEL", "EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
		"EMBEDDING_BATCH_SIZE", "QDRANT_HOST", "QDRANT_PORT",
		"QDRANT_COLLECTION", "RAG_TOP_K", "RAG_SIMILARITY_THRESHOLD",
		"RAG_STREAMING", "QAFORGE_DB", "LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":           "openai",
		"MODEL_MAX_TOKENS":         "1000",
		"MODEL_TEMPERATURE":        "0.4",
		"OPENAI_MODEL":             "gpt-4o-mini",
		"EMBEDDING_PROVIDER":       "openai",
		"EMBEDDING_MODEL":          "text-embedding-3-small",
		"EMBEDDING_BATCH_SIZE":     "16",
		"QDRANT_HOST":              "qdrant.internal",
		"QDRANT_PORT":              "6334",
		"QDRANT_COLLECTION":        "qa_pairs",
		"RAG_TOP_K":                "8",
		"RAG_SIMILARITY_THRESHOLD": "0.35",
		"RAG_STREAMING":            "true",
		"QAFORGE_DB":               "/data/qa_database.db",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	cfgPath := writeConfig(t, `
model:
  provider: ollama
`)

	// Set env var BEFORE loading — it should NOT be overwritten.
	t.Setenv("MODEL_PROVIDER", "openai")

	log := slog.Default()
	if _, err := Load(cfgPath, log); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "openai" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "openai", got)
	}
}

// TestLoad_ExplicitFalseBooleans verifies that `streaming: false` in YAML is
// applied, unlike an absent key which leaves the runtime default in place.
func TestLoad_ExplicitFalseBooleans(t *testing.T) {
	cfgPath := writeConfig(t, `
rag:
  streaming: false
  show_sources: false
`)

	for _, k := range []string{"RAG_STREAMING", "RAG_SHOW_SOURCES", "RAG_INDEX_ALL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("RAG_STREAMING"); got != "false" {
		t.Errorf("RAG_STREAMING: got %q, want %q", got, "false")
	}
	if got := os.Getenv("RAG_SHOW_SOURCES"); got != "false" {
		t.Errorf("RAG_SHOW_SOURCES: got %q, want %q", got, "false")
	}
	// index_all was absent — no env var should have been set.
	if got := os.Getenv("RAG_INDEX_ALL"); got != "" {
		t.Errorf("RAG_INDEX_ALL: expected unset, got %q", got)
	}
}

func TestLoad_ThresholdOutOfRange(t *testing.T) {
	cfgPath := writeConfig(t, `
rag:
  similarity_threshold: 1.5
`)

	_, err := Load(cfgPath, slog.Default())
	if err == nil {
		t.Fatal("expected error for out-of-range threshold")
	}
	if !strings.Contains(err.Error(), "similarity_threshold") {
		t.Errorf("error should name the offending field, got: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	cfgPath := writeConfig(t, "model: [not a mapping")

	if _, err := Load(cfgPath, slog.Default()); err == nil {
		t.Fatal("expected parse error for invalid YAML")
	}
}
