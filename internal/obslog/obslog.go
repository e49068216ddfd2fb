// Package obslog builds the process-wide structured logger. One
// zerolog.Logger is constructed at process start in cmd/forge and passed
// down explicitly into SessionRunner and the LLM client — an injected handle, never a package-level global, the same
// discipline the pack's logging packages use even where they build on a
// different backend than zerolog.
package obslog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DebugEnvVar gates the debug request/response log, mirroring spec §9's
// "debug request log" global.
const DebugEnvVar = "FORGE_DEBUG"

// Options configures logger construction.
type Options struct {
	// Debug forces debug-level logging and enables the request log file.
	// If false, DebugEnvVar is still consulted.
	Debug bool
	// RequestLogPath is where debug request/response bodies are recorded,
	// rotated once it grows large. Defaults to .forge/logs/requests.log
	// under the given repo root if empty.
	RequestLogPath string
	// RepoRoot is used to compute the default RequestLogPath.
	RepoRoot string
	// Writer overrides the human-readable console output, primarily for
	// tests. Defaults to os.Stderr.
	Writer io.Writer
}

// New builds the process logger plus, when debug mode is active, a second
// logger dedicated to full request/response bodies written to a rotating
// file so a long session never produces an unbounded log.
func New(opts Options) (zerolog.Logger, *RequestLogger) {
	debug := opts.Debug || os.Getenv(DebugEnvVar) == "1"

	out := opts.Writer
	if out == nil {
		out = os.Stderr
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	console := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	logger := zerolog.New(console).Level(level).With().Timestamp().Logger()

	var reqLog *RequestLogger
	if debug {
		path := opts.RequestLogPath
		if path == "" {
			root := opts.RepoRoot
			if root == "" {
				root = "."
			}
			path = root + "/.forge/logs/requests.log"
		}
		reqLog = newRequestLogger(path)
	}
	return logger, reqLog
}

// RequestLogger records full request/response bodies to a size-rotated
// file, active only under FORGE_DEBUG=1. Every entry is also a structured
// zerolog event so the same file can be grepped or tailed like any other
// log.
type RequestLogger struct {
	logger zerolog.Logger
}

func newRequestLogger(path string) *RequestLogger {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     7, // days
		Compress:   true,
	}
	return &RequestLogger{logger: zerolog.New(rotator).With().Timestamp().Logger()}
}

// LogRequest records one model request or response body, tagged with its
// direction.
func (r *RequestLogger) LogRequest(direction, model string, body []byte) {
	if r == nil {
		return
	}
	r.logger.Debug().
		Str("direction", direction).
		Str("model", model).
		Bytes("body", body).
		Msg("llm request")
}
