// Package trace correlates control-socket activity across log lines.
// Every inbound control message gets a span; its trace ID ties the
// orchestrator transitions and pipeline restarts it caused back to the
// message that requested them. IDs are W3C-sized, so swapping in OTel
// later needs no format change.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"
)

// Header names for inbound propagation. UI clients may supply their own
// trace ID; absent headers get fresh IDs.
const (
	TraceIDHeader = "x-trace-id"
	SpanIDHeader  = "x-span-id"
)

type ctxKey struct{}

// Context identifies one span within a trace.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New creates a root context with fresh IDs.
func New() Context {
	return Context{TraceID: newID(16), SpanID: newID(8)}
}

// NewChild derives a child span context under the same trace.
func NewChild(parent Context) Context {
	return Context{
		TraceID:      parent.TraceID,
		SpanID:       newID(8),
		ParentSpanID: parent.SpanID,
	}
}

// newID returns n random bytes hex-encoded (16 for trace, 8 for span).
func newID(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext extracts the trace context, if any.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext attaches a trace context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// EnsureContext returns the existing trace context or attaches a new one.
func EnsureContext(ctx context.Context) (context.Context, Context) {
	if tc, ok := FromContext(ctx); ok {
		return ctx, tc
	}
	tc := New()
	return WithContext(ctx, tc), tc
}

// Span is a timed operation. End logs its duration and attributes, so a
// slow control action shows up in the logs without extra plumbing.
type Span struct {
	name  string
	tc    Context
	start time.Time
	attrs []any
}

// StartSpan opens a span as a child of the context's current span.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent, ok := FromContext(ctx)
	tc := New()
	if ok {
		tc = NewChild(parent)
	}
	s := &Span{name: name, tc: tc, start: time.Now()}
	return WithContext(ctx, tc), s
}

// SetAttr records an attribute to be logged when the span ends.
func (s *Span) SetAttr(key string, val any) {
	s.attrs = append(s.attrs, key, val)
}

// End closes the span and emits its record.
func (s *Span) End() {
	args := append([]any{
		"span", s.name,
		"trace_id", s.tc.TraceID,
		"duration", time.Since(s.start),
	}, s.attrs...)
	slog.Debug("span finished", args...)
}

// Logger returns a logger carrying the context's trace identifiers.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	return slog.Default().With("trace_id", tc.TraceID, "span_id", tc.SpanID)
}

// Middleware attaches a trace context to each request, honoring IDs
// supplied by the client.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := Context{
			TraceID:      r.Header.Get(TraceIDHeader),
			ParentSpanID: r.Header.Get(SpanIDHeader),
			SpanID:       newID(8),
		}
		if tc.TraceID == "" {
			tc.TraceID = newID(16)
		}
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}
