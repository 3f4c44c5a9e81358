package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerWithWriter_Formats(t *testing.T) {
	tests := []struct {
		format string
		want   []string
	}{
		{"text", []string{"msg=\"disk ready\"", "blocks=256"}},
		{"json", []string{`"msg":"disk ready"`, `"blocks":256`}},
		{"", []string{"msg=\"disk ready\""}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			NewLoggerWithWriter(slog.LevelInfo, tt.format, &buf).Info("disk ready", "blocks", 256)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output %q missing %q", buf.String(), w)
				}
			}
		})
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelWarn, "text", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("INFO record passed WARN filter: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("WARN record missing: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"", "text", "JSON"} {
		if !ValidFormat(f) {
			t.Errorf("ValidFormat(%q) = false", f)
		}
	}
	if ValidFormat("xml") {
		t.Error("ValidFormat(xml) = true")
	}
}

type fixedTicks uint64

func (f fixedTicks) Now() uint64 { return uint64(f) }

func TestWithTicks(t *testing.T) {
	var buf bytes.Buffer
	base := NewHandler(slog.LevelDebug, "text", &buf)
	logger := slog.New(WithTicks(base, fixedTicks(1234))).With("component", "disk")

	logger.Debug("request issued", "block", 5)

	out := buf.String()
	for _, w := range []string{"tick=1234", "component=disk", "block=5"} {
		if !strings.Contains(out, w) {
			t.Errorf("output %q missing %q", out, w)
		}
	}
}
