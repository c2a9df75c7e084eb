package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	// ProjectIDKey holds the int64 id of the project being collected.
	ProjectIDKey contextKey = "project_id"
	RunIDKey     contextKey = "run_id"
)

// contextFields lists, in output order, the context values copied onto
// every record. Empty strings are left out.
var contextFields = []struct {
	key  contextKey
	attr func(v any) (slog.Attr, bool)
}{
	{RequestIDKey, stringAttr("request_id")},
	{UserIDKey, stringAttr("user_id")},
	{ProjectIDKey, func(v any) (slog.Attr, bool) {
		id, ok := v.(int64)
		return slog.Int64("project_id", id), ok
	}},
	{RunIDKey, stringAttr("run_id")},
}

func stringAttr(name string) func(any) (slog.Attr, bool) {
	return func(v any) (slog.Attr, bool) {
		s, ok := v.(string)
		return slog.String(name, s), ok && s != ""
	}
}

func attrsFromContext(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, f := range contextFields {
		if a, ok := f.attr(ctx.Value(f.key)); ok {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

// Config selects level, format and the service identity stamped on records.
type Config struct {
	Level       string // debug, info, warn, error
	Format      string // json, text
	Output      io.Writer
	AddSource   bool
	ServiceName string
	Environment string
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger builds the process logger. Records carry the service name and
// environment, plus the request, user, project and run ids found on the
// context passed to the *Context logging methods.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(a.Key, a.Value.Time().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var base slog.Handler
	if cfg.Format == "text" {
		base = slog.NewTextHandler(output, opts)
	} else {
		base = slog.NewJSONHandler(output, opts)
	}

	// Bound before any WithGroup so they stay top-level.
	base = base.WithAttrs([]slog.Attr{
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
	})
	return slog.New(&contextHandler{next: base})
}

type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrsFromContext(ctx)...)
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID records the authenticated caller.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func WithProjectID(ctx context.Context, projectID int64) context.Context {
	return context.WithValue(ctx, ProjectIDKey, projectID)
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRequestID returns "" outside a request.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// LoggerFromContext binds the context ids to logger, for code that logs
// without passing ctx along (panic handlers, detached jobs). It returns
// logger itself when ctx carries none.
func LoggerFromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := attrsFromContext(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

// LogPanic logs a recovered value with the panicking goroutine's stack.
func LogPanic(logger *slog.Logger, panicValue any) {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	logger.Error("panic recovered",
		"panic", panicValue,
		"stack_trace", string(buf[:n]),
	)
}

// RequestRecord is one served HTTP request.
type RequestRecord struct {
	Method       string
	Path         string
	StatusCode   int
	Duration     time.Duration
	BytesWritten int64
	ClientIP     string
	UserAgent    string
}

func (rec RequestRecord) level() slog.Level {
	switch {
	case rec.StatusCode >= 500:
		return slog.LevelError
	case rec.StatusCode >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// LogRequest writes rec at error for 5xx, warn for 4xx and info otherwise.
func LogRequest(ctx context.Context, logger *slog.Logger, rec RequestRecord) {
	logger.LogAttrs(ctx, rec.level(), "http request",
		slog.String("method", rec.Method),
		slog.String("path", rec.Path),
		slog.Int("status_code", rec.StatusCode),
		slog.Int64("duration_ms", rec.Duration.Milliseconds()),
		slog.Int64("bytes_written", rec.BytesWritten),
		slog.String("client_ip", rec.ClientIP),
		slog.String("user_agent", rec.UserAgent),
	)
}
