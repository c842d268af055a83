// Package notice carries user-visible signals out of the storefront core.
// Operations never surface failures by panicking or by returning them to a
// UI directly; they emit a Notice to a Sink and leave local state unchanged.
package notice

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"storefront/internal/model"
)

// Severity indicates how prominently a notice should be shown.
type Severity string

const (
	SeverityWarning Severity = "warning" // Request refused locally, nothing sent
	SeverityError   Severity = "error"   // Remote operation failed
)

// Notice is one transient, user-visible message.
type Notice struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`
}

// Warning creates a warning notice.
func Warning(code, message string) Notice {
	return Notice{Severity: SeverityWarning, Code: code, Message: message}
}

// Error creates an error notice.
func Error(code, message string) Notice {
	return Notice{Severity: SeverityError, Code: code, Message: message}
}

// FromError converts an operation failure into the notice shown for it.
// Guard rejections become warnings carrying their own message. Service faults
// carry the server-provided message when there is one; everything else falls
// back to fallback.
func FromError(err error, fallback string) Notice {
	var apiErr *model.APIError
	hasAPIErr := errors.As(err, &apiErr)

	if model.IsGuardRejection(err) && hasAPIErr {
		return Warning(apiErr.Code, apiErr.Message)
	}

	code := "INTERNAL_ERROR"
	if hasAPIErr {
		code = apiErr.Code
	}
	if msg := model.ServerMessage(err); msg != "" {
		return Error(code, msg)
	}
	return Error(code, fallback)
}

// Sink receives notices. Implementations must be safe for concurrent use:
// debounced searches complete on timer goroutines.
type Sink interface {
	Notify(ctx context.Context, n Notice)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, n Notice)

// Notify calls f(ctx, n).
func (f SinkFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Discard drops every notice.
var Discard Sink = SinkFunc(func(context.Context, Notice) {})

// Logger writes notices to a structured logger.
type Logger struct {
	logger *slog.Logger
}

// NewLogger returns a Sink that logs warnings at Warn and errors at Error.
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

// Notify logs n.
func (l *Logger) Notify(ctx context.Context, n Notice) {
	level := slog.LevelError
	if n.Severity == SeverityWarning {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, n.Message, slog.String("code", n.Code))
}

// Recorder keeps every notice it receives. Used by tests and by the gateway
// to return notices alongside a response.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify records n.
func (r *Recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of the recorded notices in arrival order.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Len returns the number of recorded notices.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}
