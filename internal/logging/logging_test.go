package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/faceguard/internal/config"
)

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := build(config.LogConfig{Level: "WARN"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	log.Info().Msg("hidden message")
	log.Warn().Str("stream", "rgb").Msg("visible message")

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Error("Info must be filtered at warn level")
	}
	if !strings.Contains(out, "visible message") || !strings.Contains(out, "rgb") {
		t.Errorf("Warn line missing: %q", out)
	}
}

func TestInvalidLevel(t *testing.T) {
	if _, _, err := build(config.LogConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Error("Expected an error for an unknown level")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faceguard.log")
	log, closer, err := build(config.LogConfig{Level: "info", File: path, MaxDays: 1}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	log.Info().Msg("to disk")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Log link not created: %v", err)
	}
	if !strings.Contains(string(data), `"message":"to disk"`) {
		t.Errorf("Expected JSON line in file, got %q", data)
	}
}
