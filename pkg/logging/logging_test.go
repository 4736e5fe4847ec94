package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := parseLogLevel(tc.in); got != tc.want {
			t.Errorf("parseLogLevel(%q): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDefaultConfigFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg := DefaultConfig()
	if cfg.Level != slog.LevelDebug || !cfg.JSON {
		t.Errorf("got %+v", cfg)
	}
}

func TestObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := NewObserver(logger)

	obs.Observe(api.Event{Kind: api.EventFetchFailed, CredentialID: "monzo", ItemID: "acc-1", Err: errors.New("502")})
	obs.Observe(api.Event{Kind: api.EventFetched, ItemID: "acc-1", Count: 12})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decoding log line: %v", err)
	}
	want := map[string]any{
		"level":      "WARN",
		"component":  "aggregator",
		"event":      "fetch_failed",
		"credential": "monzo",
		"item":       "acc-1",
		"error":      "502",
	}
	for k, v := range want {
		if first[k] != v {
			t.Errorf("%s: got %v, want %v", k, first[k], v)
		}
	}

	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decoding log line: %v", err)
	}
	if second["level"] != "DEBUG" || second["count"] != float64(12) {
		t.Errorf("second line: got %v", second)
	}
}

func TestRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, JSON: true, Output: &buf})

	logger.Info("refreshed", "credential", "monzo", "access_token", "abc123", "API_KEY", "k")
	logger.With("refresh_token", "r1").Debug("saved")

	out := buf.String()
	for _, secret := range []string{"abc123", `"k"`, "r1"} {
		if strings.Contains(out, secret) {
			t.Errorf("output leaks %s: %s", secret, out)
		}
	}
	if !strings.Contains(out, `"credential":"monzo"`) || strings.Count(out, Redacted) != 3 {
		t.Errorf("got %s", out)
	}
}
