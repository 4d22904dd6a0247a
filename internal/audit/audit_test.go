package audit

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	if got := SanitiseKey("OPENAI_API_KEY", "sk-abc123"); got != "set" {
		t.Errorf("secret value leaked: got %q, want %q", got, "set")
	}
	if got := SanitiseKey("OPENAI_API_KEY", ""); got != "unset" {
		t.Errorf("got %q, want %q", got, "unset")
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	if got := SanitiseKey("QDRANT_HOST", "localhost"); got != "localhost" {
		t.Errorf("got %q, want %q", got, "localhost")
	}
	if got := SanitiseKey("QDRANT_HOST", ""); got != "unset" {
		t.Errorf("got %q, want %q", got, "unset")
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-verysecret")
	t.Setenv("TELEGRAM_BOT_TOKEN", "12345:token")
	t.Setenv("QDRANT_HOST", "qdrant.internal")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	LogCommandStart(log, "serve", "/etc/qaforge/config.yaml")

	out := buf.String()
	if strings.Contains(out, "sk-verysecret") {
		t.Error("OPENAI_API_KEY value leaked into audit log")
	}
	if strings.Contains(out, "12345:token") {
		t.Error("TELEGRAM_BOT_TOKEN value leaked into audit log")
	}
	if !strings.Contains(out, `"OPENAI_API_KEY":"set"`) {
		t.Error("expected OPENAI_API_KEY presence marker in audit log")
	}
	if !strings.Contains(out, "qdrant.internal") {
		t.Error("expected non-secret QDRANT_HOST value in audit log")
	}
	if !strings.Contains(out, `"command":"serve"`) {
		t.Error("expected command name in audit log")
	}
}

func TestLogCommandStart_EmptyConfigPath(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	LogCommandStart(log, "ask", "")

	if !strings.Contains(buf.String(), `"config_file":"none"`) {
		t.Error("expected config_file=none for empty path")
	}
}
