package log

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

type fieldsKey struct{}

// requestFields is shared by pointer so handlers deeper in the chain can
// attach the authenticated user after the access logger has started.
type requestFields struct {
	mu        sync.RWMutex
	requestID string
	userID    string
}

// WithRequestID returns a context whose log records carry request_id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(withContext(ctx), fieldsKey{}, &requestFields{requestID: id})
}

// RequestID returns the correlation id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	f := fieldsFrom(ctx)
	if f == nil {
		return ""
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.requestID
}

// SetUserID records the authenticated user on the request fields. It is a
// no-op when ctx was not prepared by WithRequestID.
func SetUserID(ctx context.Context, id string) {
	f := fieldsFrom(ctx)
	if f == nil {
		return
	}
	f.mu.Lock()
	f.userID = id
	f.mu.Unlock()
}

// UserID returns the user recorded by SetUserID.
func UserID(ctx context.Context) string {
	f := fieldsFrom(ctx)
	if f == nil {
		return ""
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.userID
}

func fieldsFrom(ctx context.Context) *requestFields {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(fieldsKey{}).(*requestFields)
	return f
}

type contextHandler struct {
	next slog.Handler
}

func (h contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h contextHandler) Handle(ctx context.Context, record slog.Record) error {
	if f := fieldsFrom(ctx); f != nil {
		f.mu.RLock()
		if f.requestID != "" {
			record.AddAttrs(slog.String("request_id", f.requestID))
		}
		if f.userID != "" {
			record.AddAttrs(slog.String("user_id", f.userID))
		}
		f.mu.RUnlock()
	}
	return h.next.Handle(ctx, record)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: h.next.WithGroup(name)}
}

// fanout writes each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
