package logger

import "context"

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
	callerKey
)

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored in ctx, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithRequestID stores the request ID in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithCaller stores the API key fingerprint of the caller in ctx. Pass a
// fingerprint, never the key.
func WithCaller(ctx context.Context, fingerprint string) context.Context {
	return context.WithValue(ctx, callerKey, fingerprint)
}

// CallerFromContext returns the caller fingerprint stored in ctx, if any.
func CallerFromContext(ctx context.Context) string {
	fp, _ := ctx.Value(callerKey).(string)
	return fp
}

// L returns the logger from ctx with request_id and caller attached when
// they are known.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	var attrs []any
	if id := RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if fp := CallerFromContext(ctx); fp != "" {
		attrs = append(attrs, "caller", fp)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
