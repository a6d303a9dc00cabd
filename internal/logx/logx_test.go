package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: zerolog.InfoLevel, JSON: true, Out: &buf})
	log.Debug().Msg("hidden")
	log.Info().Str("task", "1|").Msg("task done")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["message"] != "task done" || rec["task"] != "1|" || rec["level"] != "info" {
		t.Errorf("unexpected record %v", rec)
	}
	if _, ok := rec["time"]; !ok {
		t.Error("missing timestamp")
	}
	if caller, _ := rec["caller"].(string); !strings.HasPrefix(caller, "logx_test.go:") {
		t.Errorf("caller = %q, want short file name", caller)
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: zerolog.DebugLevel, Out: &buf})
	log.Debug().Str("path", "/db").Msg("rebuilding")
	out := buf.String()
	if !strings.Contains(out, "rebuilding") || !strings.Contains(out, "/db") {
		t.Errorf("console output %q", out)
	}
}
