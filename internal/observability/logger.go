package observability

import (
	"context"
	"io"
	"log/slog"
	"os"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	userIDKey    contextKey = "user_id"
)

var logger *slog.Logger

// InitLogger initializes the global structured logger
func InitLogger(level, format string) {
	initLogger(os.Stdout, level, format)
}

func initLogger(w io.Writer, level, format string) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: level == "debug",
	}

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger = slog.New(handler).With(slog.String("service", "room-web"))
	slog.SetDefault(logger)
}

// FromContext returns a logger carrying the request id set by chi's
// RequestID middleware plus any session attributes stored in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	base := logger
	if base == nil {
		base = slog.Default()
	}

	attrs := make([]any, 0, 3)

	if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
		attrs = append(attrs, slog.String("request_id", reqID))
	}

	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok && sessionID != "" {
		attrs = append(attrs, slog.String("session_id", sessionID))
	}

	if userID, ok := ctx.Value(userIDKey).(string); ok && userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}

	if len(attrs) > 0 {
		return base.With(attrs...)
	}
	return base
}

// WithSession records the session id and user id for later log lines.
// The session id is the record id, never the cookie token.
func WithSession(ctx context.Context, sessionID, userID string) context.Context {
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return context.WithValue(ctx, userIDKey, userID)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
