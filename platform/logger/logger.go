// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// AgentIDKey is the context key for the acting agent ID
	AgentIDKey contextKey = "agent_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if agentID, ok := ctx.Value(AgentIDKey).(string); ok && agentID != "" {
		newLogger = newLogger.WithAgentID(agentID)
	}

	return newLogger
}

// WithAgentID returns a logger with the acting agent ID attached.
func (l *Logger) WithAgentID(agentID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("agent_id", agentID)),
	}
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// ScoringFallback logs that a lead was scored via the deterministic
// fallback path instead of the completion service.
func (l *Logger) ScoringFallback(leadID, reason string) {
	l.Warn("scoring_fallback",
		slog.String("lead_id", leadID),
		slog.String("reason", reason),
	)
}

// IndexRepaired logs a detected-and-repaired secondary index inconsistency.
// This should never fire under the atomic update contract.
func (l *Logger) IndexRepaired(agentID, leadID, status string) {
	l.Error("index_inconsistency_repaired",
		slog.String("agent_id", agentID),
		slog.String("lead_id", leadID),
		slog.String("status", status),
	)
}

// TaskError logs background task failures.
func (l *Logger) TaskError(task string, err error) {
	l.Error("task_error",
		slog.String("task", task),
		slog.String("error", err.Error()),
	)
}
