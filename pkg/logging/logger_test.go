package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// decodeLines parses one JSON object per non-empty line.
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("log line is not JSON: %q (%v)", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo || cfg.Format != FormatJSON || cfg.Output == nil {
		t.Errorf("DefaultConfig() = %+v, want info/json with output", cfg)
	}
}

func TestSetup_PipelineComponents(t *testing.T) {
	tests := []struct {
		name      string
		level     LogLevel
		component string
		emit      func(zerolog.Logger)
		wantLevel string
		wantMsg   string
		wantField string
	}{
		{
			name:      "retry attempt at debug",
			level:     LevelDebug,
			component: "fetch",
			emit: func(l zerolog.Logger) {
				l.Debug().Int64("id", 42).Int("attempt", 2).Str("error_class", "server").Msg("Fetch attempt failed")
			},
			wantLevel: "debug",
			wantMsg:   "Fetch attempt failed",
			wantField: "error_class",
		},
		{
			name:      "batch commit at info",
			level:     LevelInfo,
			component: "batch-coordinator",
			emit: func(l zerolog.Logger) {
				l.Info().Int("batch", 1).Int("success", 999).Int("failed", 1).Msg("Batch committed")
			},
			wantLevel: "info",
			wantMsg:   "Batch committed",
			wantField: "batch",
		},
		{
			name:      "corrupt checkpoint at warn",
			level:     LevelWarn,
			component: "checkpoint",
			emit: func(l zerolog.Logger) {
				l.Warn().Str("path", "checkpoints/cp.json").Msg("Checkpoint corrupt - starting fresh")
			},
			wantLevel: "warn",
			wantMsg:   "Checkpoint corrupt - starting fresh",
			wantField: "path",
		},
		{
			name:      "batch write failure at error",
			level:     LevelError,
			component: "batch-coordinator",
			emit: func(l zerolog.Logger) {
				l.Error().Int("batch", 3).Str("error", "disk full").Msg("Batch failed - left uncommitted for the next run")
			},
			wantLevel: "error",
			wantMsg:   "Batch failed - left uncommitted for the next run",
			wantField: "batch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			Setup(Config{Level: tt.level, Format: FormatJSON, Output: buf})

			tt.emit(NewLogger(tt.component))

			lines := decodeLines(t, buf)
			if len(lines) != 1 {
				t.Fatalf("log lines = %d, want 1: %s", len(lines), buf.String())
			}
			got := lines[0]
			if got["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", got["level"], tt.wantLevel)
			}
			if got["component"] != tt.component {
				t.Errorf("component = %v, want %s", got["component"], tt.component)
			}
			if got["message"] != tt.wantMsg {
				t.Errorf("message = %v, want %s", got["message"], tt.wantMsg)
			}
			if _, ok := got[tt.wantField]; !ok {
				t.Errorf("field %q missing from %v", tt.wantField, got)
			}
			if _, ok := got["time"]; !ok {
				t.Error("time field missing")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input LogLevel
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"Warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSetup_WarnHidesPerAttemptNoise(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Format: FormatJSON, Output: buf})
	logger := NewLogger("fetch")

	logger.Debug().Int64("id", 7).Msg("Fetch succeeded")
	logger.Info().Int("batch", 0).Msg("Batch progress")
	logger.Warn().Int64("id", 7).Msg("Fetch failed - retries exhausted")

	lines := decodeLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1 (warn only): %s", len(lines), buf.String())
	}
	if lines[0]["message"] != "Fetch failed - retries exhausted" {
		t.Errorf("message = %v, want the exhausted warning", lines[0]["message"])
	}
}

func TestSetup_GlobalLoggerReplaced(t *testing.T) {
	first := &bytes.Buffer{}
	second := &bytes.Buffer{}

	Setup(Config{Level: LevelInfo, Format: FormatJSON, Output: first})
	Setup(Config{Level: LevelInfo, Format: FormatJSON, Output: second})
	logger := NewLogger("runner")
	logger.Info().Msg("Run starting")

	if first.Len() != 0 {
		t.Errorf("old output received %q", first.String())
	}
	if !strings.Contains(second.String(), `"component":"runner"`) {
		t.Errorf("new output = %q, want runner component", second.String())
	}
}

func TestSetup_ConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Format: "CONSOLE", Output: buf})

	logger.Info().Int("batch", 2).Msg("Batch committed")

	output := buf.String()
	if strings.HasPrefix(strings.TrimSpace(output), "{") {
		t.Errorf("console output looks like JSON: %q", output)
	}
	if !strings.Contains(output, "Batch committed") {
		t.Errorf("console output = %q, want the message", output)
	}
}

func TestSetup_NilOutputFallsBackToStderr(t *testing.T) {
	logger := Setup(Config{Level: LevelError})
	logger.Debug().Msg("filtered")
}
