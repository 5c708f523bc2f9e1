// Package logging is the injected telemetry sink the data plane is written
// against (spec §9: "Global logger ... treated as an injected telemetry
// sink; the core is written against a log(level, fields…) capability, not
// any concrete logger"). The concrete implementation is zap, matching the
// rest of the reference corpus.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured key/value pair attached to a log line.
type Field = zap.Field

// String, Int, Err, Duration, etc. are re-exported so callers never import
// zap directly — the data plane only ever sees the Logger interface below.
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Bool     = zap.Bool
	Err      = zap.Error
	Duration = zap.Duration
	Float64  = zap.Float64
)

// Logger is the capability the data plane is coded against.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a Logger that always includes the given fields, used to
	// scope a logger to a single vHost or request.
	With(fields ...Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

// New builds a production-shaped JSON logger at the given level
// ("debug", "info", "warn", "error"; defaults to "info" on parse failure).
func New(level string) Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "ts"

	l, err := cfg.Build()
	if err != nil {
		// Config construction only fails on invalid encoder settings, which
		// cfg above never produces; fall back to a basic logger rather than
		// taking down the process over telemetry.
		l = zap.NewExample()
	}
	return &zapLogger{l: l}
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() Logger {
	return &zapLogger{l: zap.NewNop()}
}

func (z *zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{l: z.l.With(fields...)}
}
