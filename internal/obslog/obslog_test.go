package obslog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDefaultsToInfoLevelWithoutDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, reqLog := New(Options{Writer: &buf})
	if reqLog != nil {
		t.Fatal("expected no request logger outside debug mode")
	}
	logger.Debug().Msg("should not appear")
	logger.Info().Msg("should appear")
	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Fatal("expected debug message to be suppressed at info level")
	}
	if !strings.Contains(out, "should appear") {
		t.Fatal("expected info message to be logged")
	}
}

func TestDebugModeEnablesRequestLogger(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, reqLog := New(Options{Debug: true, RepoRoot: dir, Writer: &buf})
	if reqLog == nil {
		t.Fatal("expected a request logger in debug mode")
	}
	logger.Debug().Msg("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatal("expected debug-level message at debug level")
	}

	reqLog.LogRequest("outbound", "gpt-5", []byte(`{"hello":"world"}`))

	data, err := os.ReadFile(filepath.Join(dir, ".forge", "logs", "requests.log"))
	if err != nil {
		t.Fatalf("read request log: %v", err)
	}
	if !strings.Contains(string(data), "gpt-5") {
		t.Fatalf("expected model name recorded in request log, got %q", data)
	}
}

func TestEnvVarEnablesDebugWithoutExplicitOption(t *testing.T) {
	t.Setenv(DebugEnvVar, "1")
	var buf bytes.Buffer
	logger, reqLog := New(Options{RepoRoot: t.TempDir(), Writer: &buf})
	if reqLog == nil {
		t.Fatal("expected FORGE_DEBUG=1 to enable the request logger")
	}
	logger.Debug().Msg("visible via env")
	if !strings.Contains(buf.String(), "visible via env") {
		t.Fatal("expected debug level active via env var")
	}
}
