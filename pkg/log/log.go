package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/scrappyAI/toka/pkg/token"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger

	// activeConfig is the Config most recently passed to Init, kept around
	// so EnableRedaction can rebuild Logger with the same level/format but
	// a wrapped writer, without the caller having to replay the rest of
	// the configuration.
	activeConfig Config
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer

	// RedactSecrets, if set, scrubs every live secret in pool from a log
	// line's serialized bytes before they reach Output. A zerolog.Hook
	// cannot do this: hooks run against an in-progress *zerolog.Event and
	// may only add fields, not rewrite bytes already queued for the
	// message or earlier fields, so redaction is applied at the
	// io.Writer boundary instead.
	RedactSecrets *token.SecretPool
}

// Init initializes the global logger.
func Init(cfg Config) {
	activeConfig = cfg
	rebuild()
}

// EnableRedaction turns on log redaction against pool's live secrets,
// rebuilding Logger from the most recent Init config. Call it once pool
// exists, typically right after a cluster node's signing secret is
// resolved.
func EnableRedaction(pool *token.SecretPool) {
	activeConfig.RedactSecrets = pool
	rebuild()
}

func rebuild() {
	cfg := activeConfig

	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.RedactSecrets != nil {
		output = &redactingWriter{out: output, pool: cfg.RedactSecrets}
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// redactingWriter scrubs pool's live secrets out of every write before
// passing it on to out. zerolog writes one complete, newline-terminated
// line per call, so a single token.Redact pass per Write is sufficient.
type redactingWriter struct {
	out  io.Writer
	pool *token.SecretPool
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	scrubbed := token.Redact(w.pool, string(p))
	if _, err := io.WriteString(w.out, scrubbed); err != nil {
		return 0, err
	}
	// Report the original length written so callers (zerolog included)
	// never see a short-write error over a rewrite that only shrinks text.
	return len(p), nil
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithNodeID creates a child logger with node_id field
func WithNodeID(nodeID string) zerolog.Logger {
	return Logger.With().Str("node_id", nodeID).Logger()
}

// WithOrigin creates a child logger scoped to the entity that originated
// a Message.
func WithOrigin(origin string) zerolog.Logger {
	return Logger.With().Str("origin", origin).Logger()
}

// WithEventID creates a child logger scoped to a causal EventId.
func WithEventID(eventID string) zerolog.Logger {
	return Logger.With().Str("event_id", eventID).Logger()
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
