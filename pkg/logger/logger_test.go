package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"vkharvest/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{
			name: "valid config with info level",
			cfg:  &config.LoggingConfig{Level: "info", Format: "json"},
		},
		{
			name: "console format",
			cfg:  &config.LoggingConfig{Level: "debug", Format: "console"},
		},
		{
			name:    "invalid log level",
			cfg:     &config.LoggingConfig{Level: "invalid"},
			wantErr: true,
		},
		{
			name: "config with rotated file output",
			cfg: &config.LoggingConfig{
				Level:      "info",
				Format:     "json",
				File:       filepath.Join(t.TempDir(), "logs", "vkharvest.log"),
				MaxSize:    1,
				MaxBackups: 1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestFileOutputIsWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, err := New(&config.LoggingConfig{Level: "info", Format: "json", File: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.WithField("worker", 2).Info("round stored")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"worker":2`) {
		t.Errorf("log file missing field, got %s", data)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if level != tt.expected {
				t.Errorf("parseLogLevel() = %v, want %v", level, tt.expected)
			}
		})
	}
}

func TestWithFieldsAreInherited(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "debug")
	if err != nil {
		t.Fatal(err)
	}

	child := logger.WithFields(map[string]interface{}{
		"method": "walls",
		"batch":  3,
	})
	child.WithError(errors.New("boom")).InfoWithFields("batch failed", map[string]interface{}{"code": 6})

	out := buf.String()
	for _, want := range []string{`"method":"walls"`, `"batch":3`, `"error":"boom"`, `"code":6`, "batch failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewWithWriter(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info entry written at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn entry missing")
	}
}

func TestTestLoggerCapturesChildFields(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("worker", 1).WithError(errors.New("limit")).WarnWithFields("credential exhausted", map[string]interface{}{
		"method": "groups",
	})
	tl.Info("pass finished")

	msgs := tl.GetMessages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Fields["worker"] != 1 || msgs[0].Fields["method"] != "groups" {
		t.Errorf("fields not merged: %v", msgs[0].Fields)
	}
	if msgs[0].Error == nil {
		t.Error("error not captured")
	}
	if !tl.HasMessage("pass finished") {
		t.Error("HasMessage() = false")
	}
	if len(tl.GetMessagesByLevel("WARN")) != 1 {
		t.Error("expected one WARN message")
	}

	tl.Clear()
	if len(tl.GetMessages()) != 0 {
		t.Error("Clear() left messages")
	}
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.WithField("a", 1).WithError(errors.New("x")).Info("nothing")
}
