package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/qaforge/qaforge/internal/rag"
)

func askWithToken(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/api/ask",
		strings.NewReader(`{"question":"Как вернуть товар надлежащего качества?"}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuth_ValidToken(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{Success: true, Text: "ответ"}}
	ts := newTestServer(t, fake, func(cfg *Config) { cfg.APIKey = "secret-key" })

	resp := askWithToken(t, ts.URL, "secret-key")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{Success: true}}
	ts := newTestServer(t, fake, func(cfg *Config) { cfg.APIKey = "secret-key" })

	resp := askWithToken(t, ts.URL, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if hdr := resp.Header.Get("WWW-Authenticate"); !strings.Contains(hdr, "Bearer") {
		t.Errorf("WWW-Authenticate = %q, want Bearer challenge", hdr)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{Success: true}}
	ts := newTestServer(t, fake, func(cfg *Config) { cfg.APIKey = "secret-key" })

	resp := askWithToken(t, ts.URL, "wrong-key")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuth_DisabledWhenNoKey(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{Success: true, Text: "ответ"}}
	ts := newTestServer(t, fake, nil)

	resp := askWithToken(t, ts.URL, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", resp.StatusCode)
	}
}

func TestAuth_ProbesStayOpen(t *testing.T) {
	fake := &fakeAnswerer{answer: &rag.Answer{Success: true}}
	ts := newTestServer(t, fake, func(cfg *Config) { cfg.APIKey = "secret-key" })

	for _, path := range []string{"/api/health", "/api/ready", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200 without credentials", path, resp.StatusCode)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"well formed", "Bearer abc123", "abc123"},
		{"case insensitive scheme", "bearer abc123", "abc123"},
		{"missing header", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"no token", "Bearer", ""},
		{"padded token", "Bearer   abc123 ", "abc123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := bearerToken(req); got != tt.want {
				t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
