package logging

import (
	"context"
	"time"
)

// HTTPRequestContext logs an HTTP request with context and common fields.
func HTTPRequestContext(ctx context.Context, method, path, remoteAddr string, statusCode int, duration time.Duration, args ...any) {
	allArgs := []any{
		"method", method,
		"path", path,
		"remote_addr", remoteAddr,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("http_request", allArgs...)
}

// ScriptureFetch logs one call to an upstream scripture API. err is nil on
// success.
func ScriptureFetch(ctx context.Context, service, translation string, psalm int, duration time.Duration, err error) {
	args := []any{
		"service", service,
		"translation", translation,
		"psalm", psalm,
		"duration_ms", duration.Milliseconds(),
	}
	if err != nil {
		LoggerFromContext(ctx).Warn("scripture_fetch", append(args, "error", err.Error())...)
		return
	}
	LoggerFromContext(ctx).Info("scripture_fetch", args...)
}

// ScriptureFallback logs a substitution made because the requested psalm
// could not be fetched.
func ScriptureFallback(ctx context.Context, psalm int, translation, reference string, err error) {
	args := []any{
		"psalm", psalm,
		"translation", translation,
		"reference", reference,
	}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	LoggerFromContext(ctx).Warn("scripture_fallback", args...)
}

// GestureCommit logs a committed selection.
func GestureCommit(ctx context.Context, kind string, indices, highlights, phrases int) {
	LoggerFromContext(ctx).Debug("gesture_commit",
		"kind", kind,
		"indices", indices,
		"highlights", highlights,
		"phrases", phrases,
	)
}

// SessionEvent logs session lifecycle events (created, reset, deleted, restored).
func SessionEvent(ctx context.Context, event string, args ...any) {
	allArgs := append([]any{"event", event}, args...)
	LoggerFromContext(ctx).Info("session_event", allArgs...)
}

// StorageError logs a failed persistence operation. Storage failures never
// fail the request that caused them.
func StorageError(ctx context.Context, operation, key string, err error) {
	LoggerFromContext(ctx).Error("storage_error",
		"operation", operation,
		"key", key,
		"error", err.Error(),
	)
}

// WebSocketEvent logs WebSocket events.
func WebSocketEvent(event string, clientCount int, args ...any) {
	allArgs := []any{
		"event", event,
		"client_count", clientCount,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("websocket_event", allArgs...)
}

// ServerStartup logs server startup information.
func ServerStartup(serverType, protocol string, port int, args ...any) {
	allArgs := []any{
		"server_type", serverType,
		"protocol", protocol,
		"port", port,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("server_startup", allArgs...)
}

// SecurityEvent logs security-related events.
func SecurityEvent(event, component string, args ...any) {
	allArgs := []any{
		"event", event,
		"component", component,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Warn("security_event", allArgs...)
}
