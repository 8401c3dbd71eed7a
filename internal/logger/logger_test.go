package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected valid JSON output, got error: %v (%q)", err, buf.String())
	}
	return entry
}

func TestNew_CreatesLogger(t *testing.T) {
	for _, env := range []string{"development", "production", "test"} {
		logger := New(env)
		if logger == nil || logger.GetZerolog() == nil {
			t.Fatalf("Expected logger to be created for %s", env)
		}
	}
}

func TestNewWithWriter_LevelsByEnvironment(t *testing.T) {
	tests := []struct {
		env       string
		wantDebug bool
		wantInfo  bool
	}{
		{"development", true, true},
		{"production", false, true},
		{"test", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(tt.env, &buf)

			logger.Debug("fitting seasonal model", nil)
			gotDebug := strings.Contains(buf.String(), "fitting seasonal model")
			logger.Info("reference rebuilt", nil)
			gotInfo := strings.Contains(buf.String(), "reference rebuilt")
			logger.Warn("tier demoted", nil)

			if gotDebug != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", gotDebug, tt.wantDebug)
			}
			if gotInfo != tt.wantInfo {
				t.Errorf("info logged = %v, want %v", gotInfo, tt.wantInfo)
			}
			if !strings.Contains(buf.String(), "tier demoted") {
				t.Error("Expected warnings to be logged at every level")
			}
		})
	}
}

func TestInfo_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("production", &buf)

	logger.Info("analysis complete", map[string]interface{}{
		"property_id": "p-100",
		"score":       72.5,
	})

	entry := decodeLine(t, &buf)
	if entry["message"] != "analysis complete" {
		t.Errorf("Expected message field, got %v", entry["message"])
	}
	if entry["property_id"] != "p-100" {
		t.Errorf("Expected property_id field, got %v", entry["property_id"])
	}
	if entry["score"] != 72.5 {
		t.Errorf("Expected score field, got %v", entry["score"])
	}
	if entry["level"] != "info" {
		t.Errorf("Expected info level, got %v", entry["level"])
	}
}

func TestError_IncludesError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("production", &buf)

	logger.Error("market data unavailable", errors.New("connection refused"), map[string]interface{}{
		"zipcode": "78701",
	})

	entry := decodeLine(t, &buf)
	if entry["error"] != "connection refused" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}
	if entry["zipcode"] != "78701" {
		t.Errorf("Expected zipcode field, got %v", entry["zipcode"])
	}
}

func TestChildLoggers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("production", &buf)

	child := logger.
		With(map[string]interface{}{"version": "abc123"}).
		WithRequestID("req-12345").
		WithComponent("forecast").
		WithRunID("run-1")
	child.Info("forecast produced", nil)

	entry := decodeLine(t, &buf)
	want := map[string]string{
		"version":    "abc123",
		"request_id": "req-12345",
		"component":  "forecast",
		"run_id":     "run-1",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Errorf("Expected %s=%s, got %v", key, value, entry[key])
		}
	}
}

func TestNop_DiscardsOutput(t *testing.T) {
	logger := Nop()

	// Should not panic
	logger.Info("ignored", map[string]interface{}{"k": "v"})
	logger.Error("ignored", errors.New("boom"), nil)
}

func TestNilFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("production", &buf)

	// Should not panic with nil fields
	logger.Warn("message with nil fields", nil)

	if !strings.Contains(buf.String(), "message with nil fields") {
		t.Error("Expected message to be logged even with nil fields")
	}
}
