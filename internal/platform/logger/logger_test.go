package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, opts Options) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var console bytes.Buffer
	opts.Console = &console
	logger := New(opts)
	t.Cleanup(func() {
		if err := Close(logger); err != nil {
			t.Errorf("Error closing logger: %v", err)
		}
	})
	return logger, &console
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(content)
}

func TestNew_DualOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	logger, console := newTestLogger(t, Options{
		Env:          "prod",
		ConsoleLevel: "warn",
		FileLevel:    "debug",
		File:         logFile,
		App:          "tgqueue",
	})

	logger.Debug("debug only in file")
	logger.Info("info only in file")
	logger.Warn("warn in both")

	fileContent := readFile(t, logFile)
	for _, msg := range []string{"debug only in file", "info only in file", "warn in both"} {
		if !strings.Contains(fileContent, msg) {
			t.Errorf("File should contain %q", msg)
		}
	}
	if !strings.Contains(fileContent, `"level":"DEBUG"`) {
		t.Error("File should contain JSON formatted debug level")
	}
	if !strings.Contains(fileContent, `"app":"tgqueue"`) {
		t.Error("File should contain app field")
	}

	out := console.String()
	if strings.Contains(out, "info only in file") {
		t.Error("Console should not contain info message at warn level")
	}
	if !strings.Contains(out, "warn in both") {
		t.Error("Console should contain warn message")
	}
}

func TestNew_DefaultLevels(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "default.log")

	logger, console := newTestLogger(t, Options{Env: "prod", File: logFile, App: "tgqueue"})

	logger.Debug("debug message")
	logger.Info("info message")

	if !strings.Contains(readFile(t, logFile), "debug message") {
		t.Error("Default file level should include debug messages")
	}
	if strings.Contains(console.String(), "debug message") {
		t.Error("Default console level should skip debug messages")
	}
	if !strings.Contains(console.String(), "info message") {
		t.Error("Console should contain info message")
	}
}

func TestNew_ConsoleOnly(t *testing.T) {
	logger, console := newTestLogger(t, Options{Env: "dev", App: "tgqueue"})

	logger.Info("console only message")

	if !strings.Contains(console.String(), "console only message") {
		t.Error("Console should contain message")
	}
	if err := Close(logger); err != nil {
		t.Errorf("Close without file should be a no-op: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelWarn},
		{"verbose", slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in, slog.LevelWarn); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRedactingHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewTextHandler(&buf, nil), DefaultSensitiveKeys))

	logger.Info("journal opened",
		slog.String("token", "plain-value"),
		slog.String("DSN", "postgres://bot:hunter2@db:5432/tgqueue"),
		slog.String("user", "john"),
	)

	out := buf.String()
	if strings.Contains(out, "plain-value") || strings.Contains(out, "hunter2") {
		t.Errorf("Sensitive keys should be redacted: %s", out)
	}
	if !strings.Contains(out, "token=[REDACTED]") {
		t.Errorf("Should contain redacted placeholder: %s", out)
	}
	if !strings.Contains(out, "user=john") {
		t.Error("Non-sensitive data should not be redacted")
	}
}

func TestRedactingHandler_ScrubsValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewTextHandler(&buf, nil), nil))

	logger.Info("bot request",
		slog.String("url", "https://api.telegram.org/bot123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw/getMe"),
		slog.Group("journal", slog.String("target", "postgres://bot:hunter2@db/tgqueue")),
	)

	out := buf.String()
	if strings.Contains(out, "AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw") {
		t.Errorf("Bot token should be scrubbed: %s", out)
	}
	if strings.Contains(out, "hunter2") {
		t.Errorf("DSN password in group should be scrubbed: %s", out)
	}
	if !strings.Contains(out, "journal.target=") {
		t.Errorf("Group should be preserved: %s", out)
	}
}

func TestRedactingHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRedactingHandler(slog.NewTextHandler(&buf, nil), []string{"secret"})).
		With(slog.String("secret", "s3cr3t"))

	logger.Info("with attrs")

	if strings.Contains(buf.String(), "s3cr3t") {
		t.Error("Attributes added via With should be redacted")
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestMultiHandler(t *testing.T) {
	var info, warn bytes.Buffer
	h1 := slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo})
	h2 := slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn})

	multi := NewMultiHandler(h1, h2)
	ctx := context.Background()

	if !multi.Enabled(ctx, slog.LevelInfo) {
		t.Error("Should be enabled for info level")
	}
	if multi.Enabled(ctx, slog.LevelDebug) {
		t.Error("Should not be enabled for debug level")
	}

	logger := slog.New(multi).With("component", "jobqueue").WithGroup("job")
	logger.Info("info", "name", "reminder")

	if !strings.Contains(info.String(), "component=jobqueue") || !strings.Contains(info.String(), "job.name=reminder") {
		t.Errorf("Info handler should receive attrs and group: %s", info.String())
	}
	if warn.Len() != 0 {
		t.Error("Warn handler should skip info records")
	}
}

func TestMultiHandler_ContinuesAfterError(t *testing.T) {
	var buf bytes.Buffer
	ok := slog.NewTextHandler(&buf, nil)
	bad := failingHandler{Handler: slog.NewTextHandler(&bytes.Buffer{}, nil)}

	multi := NewMultiHandler(bad, ok)
	err := multi.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "still written", 0))

	if err == nil {
		t.Error("Handle should report failing handler")
	}
	if !strings.Contains(buf.String(), "still written") {
		t.Error("Healthy handler should still receive the record")
	}
}
