package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/toolroute"

// AttrConversation is the span and log attribute naming the conversation a
// turn belongs to.
const AttrConversation = "conversation"

type conversationKey struct{}

// Tracer returns the toolroute tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. When ctx carries a conversation ID (see
// [WithConversation]) the span is tagged with it. The caller ends the span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := ConversationID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(attribute.String(AttrConversation, id)))
	}
	return Tracer().Start(ctx, name, opts...)
}

// WithConversation returns a copy of ctx scoped to conversation id. Spans
// started and loggers obtained from it carry the ID.
func WithConversation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationKey{}, id)
}

// ConversationID returns the conversation ctx is scoped to, or "".
func ConversationID(ctx context.Context) string {
	id, _ := ctx.Value(conversationKey{}).(string)
	return id
}

// CorrelationID returns the trace ID of the span in ctx, or "" when there is
// none. It is echoed to HTTP clients as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the conversation, trace_id and
// span_id found in ctx attached.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if id := ConversationID(ctx); id != "" {
		attrs = append(attrs, slog.String(AttrConversation, id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
