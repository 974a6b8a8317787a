// Package logger configures the process-wide zerolog logger. The rest of
// the codebase logs through the global github.com/rs/zerolog/log logger
// directly, the same way the teacher's node executors do
// (log.Debug().Str(...).Msg(...)); this package only owns startup
// configuration.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger's level and output format.
// levelName is parsed case-insensitively ("debug", "info", "warn", "error");
// unrecognized values fall back to info. pretty selects a human-readable
// console writer (for local development) over structured JSON (for
// production, where log shippers expect one JSON object per line).
func Init(levelName string, pretty bool) {
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writer = os.Stderr
	if pretty {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
}

// WithExecution returns a logger pre-populated with the fields every
// execution-scoped log line carries, so call sites don't repeat them.
func WithExecution(tenantID, workflowID, executionID string) zerolog.Logger {
	return log.With().
		Str("tenant_id", tenantID).
		Str("workflow_id", workflowID).
		Str("execution_id", executionID).
		Logger()
}
