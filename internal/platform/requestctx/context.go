package requestctx

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	traceKey
	actorKey
	annotationsKey
)

var noopLogger = zap.NewNop()

// TraceInfo identifies the server span of the current request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Annotations collect values learned deep in the handler chain (the caller, the order touched) so the
// access log can report them after the response is written. Safe for concurrent use.
type Annotations struct {
	mu     sync.Mutex
	values map[string]string
}

// Set records value under key. Empty values are ignored.
func (a *Annotations) Set(key, value string) {
	if a == nil || key == "" || value == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.values == nil {
		a.values = make(map[string]string)
	}
	a.values[key] = value
}

// Fields returns the annotations as zap fields ordered by key.
func (a *Annotations) Fields() []zap.Field {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.values))
	for key := range a.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, 0, len(keys))
	for _, key := range keys {
		fields = append(fields, zap.String(key, a.values[key]))
	}
	return fields
}

// WithAnnotations attaches a fresh annotation set to ctx.
func WithAnnotations(ctx context.Context) (context.Context, *Annotations) {
	notes := &Annotations{}
	return context.WithValue(orBackground(ctx), annotationsKey, notes), notes
}

// Annotate records key/value on the request's annotation set, if one is attached.
func Annotate(ctx context.Context, key, value string) {
	if ctx == nil {
		return
	}
	notes, _ := ctx.Value(annotationsKey).(*Annotations)
	notes.Set(key, value)
}

// WithLogger stores the request-scoped logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(orBackground(ctx), loggerKey, logger)
}

// Logger returns the request-scoped logger or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger is the logger Logger falls back to.
func NoopLogger() *zap.Logger { return noopLogger }

// WithActor records the authenticated caller and annotates the request with it.
func WithActor(ctx context.Context, actorID string) context.Context {
	Annotate(ctx, "actor", actorID)
	return context.WithValue(orBackground(ctx), actorKey, actorID)
}

// Actor returns the caller recorded by WithActor, or "" for guests.
func Actor(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	actor, _ := ctx.Value(actorKey).(string)
	return actor
}

// Fields returns the identifiers attached to every service event log line.
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if traceID := TraceID(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if actor := Actor(ctx); actor != "" {
		fields = append(fields, zap.String("actor", actor))
	}
	return fields
}

// WithTrace stores the span identifiers of the current request.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(orBackground(ctx), traceKey, info)
}

// Trace returns the span identifiers stored by WithTrace.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID returns the current trace id or "".
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
