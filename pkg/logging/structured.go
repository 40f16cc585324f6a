// Package logging provides the structured zap logger used across the
// benchmark engine, with helpers for the engine's recurring events.
package logging

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger
type Logger struct {
	zap *zap.Logger
}

// Config holds logging configuration
type Config struct {
	Level     string
	Format    string // "json" or "console"
	Output    string // "stdout", "stderr" or a file path
	AddCaller bool
	AddStack  bool
}

// NewLogger creates a new structured logger
func NewLogger(config Config) (*Logger, error) {
	if config.Format == "" {
		config.Format = "json"
	}
	if config.Output == "" {
		config.Output = "stderr"
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = parseZapLevel(config.Level)
	zapConfig.Encoding = config.Format
	zapConfig.OutputPaths = []string{config.Output}
	zapConfig.ErrorOutputPaths = []string{config.Output}
	zapConfig.DisableCaller = !config.AddCaller
	zapConfig.DisableStacktrace = !config.AddStack
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{zap: zapLogger}, nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// FromZap wraps an existing zap logger
func FromZap(z *zap.Logger) *Logger {
	return &Logger{zap: z}
}

// parseZapLevel parses zap level from string
func parseZapLevel(level string) zap.AtomicLevel {
	switch level {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
}

// WithAttempt adds the run attempt id to logger context
func (l *Logger) WithAttempt(attemptID string) *Logger {
	return &Logger{zap: l.zap.With(zap.String("attempt_id", attemptID))}
}

// WithTraceID adds trace ID to logger context
func (l *Logger) WithTraceID(ctx context.Context, traceID string) *Logger {
	return &Logger{zap: l.zap.With(zap.String("trace_id", traceID))}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.zap.Debug(msg, convertToZapFields(args)...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.zap.Info(msg, convertToZapFields(args)...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.zap.Warn(msg, convertToZapFields(args)...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.zap.Error(msg, convertToZapFields(args)...)
}

// convertToZapFields converts alternating key/value args to zap fields.
// Errors are logged under their key with zap.NamedError.
func convertToZapFields(args []interface{}) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if err, isErr := args[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, args[i+1]))
	}
	return fields
}

// LogProviderCall logs one provider attempt. Response bodies and
// credentials are never passed here.
func (l *Logger) LogProviderCall(ctx context.Context, provider, model, status string, duration time.Duration, tokens int, cost float64, requestID string) {
	l.zap.Debug("Provider call completed",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.String("status", status),
		zap.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
		zap.Int("tokens", tokens),
		zap.Float64("cost", cost),
		zap.String("request_id", requestID),
	)
}

// LogRetry logs a scheduled retry of a provider call.
func (l *Logger) LogRetry(ctx context.Context, model, reason string, attempt int, delay time.Duration) {
	l.zap.Warn("Provider call retry",
		zap.String("model", model),
		zap.String("reason", reason),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)
}

// LogCircuitBreaker logs a breaker transition for one model.
func (l *Logger) LogCircuitBreaker(ctx context.Context, model, from, to string) {
	l.zap.Warn("Circuit breaker state changed",
		zap.String("model", model),
		zap.String("from", from),
		zap.String("to", to),
	)
}

// LogRunTransition logs a run lifecycle step.
func (l *Logger) LogRunTransition(ctx context.Context, scenarioID, model, from, to string) {
	lvl := zapcore.InfoLevel
	if to == "failed" || to == "timed_out" {
		lvl = zapcore.WarnLevel
	}
	l.zap.Log(lvl, "Run state changed",
		zap.String("scenario_id", scenarioID),
		zap.String("model", model),
		zap.String("from", from),
		zap.String("to", to),
	)
}

// LogMigration logs a relocated legacy run.
func (l *Logger) LogMigration(ctx context.Context, legacyID, runID string) {
	l.zap.Info("Legacy run migrated", zap.String("legacy_id", legacyID), zap.String("run_id", runID))
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// GetZap returns the zap logger
func (l *Logger) GetZap() *zap.Logger {
	return l.zap
}
