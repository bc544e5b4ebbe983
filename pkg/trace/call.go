package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentConnectionCreated creates a span for connection creation
func InstrumentConnectionCreated(ctx context.Context, connID, connType string) (context.Context, trace.Span) {
	return StartSpan(ctx, "connection.created",
		trace.WithAttributes(
			ConnectionAttrs(connID, connType, "created")...,
		),
	)
}

// InstrumentConnectionClosed creates a span for connection closure
func InstrumentConnectionClosed(ctx context.Context, connID, connType string) (context.Context, trace.Span) {
	return StartSpan(ctx, "connection.closed",
		trace.WithAttributes(
			ConnectionAttrs(connID, connType, "closed")...,
		),
	)
}

// InstrumentCallEvent creates a span for an incoming WhatsApp call event
func InstrumentCallEvent(ctx context.Context, callID, direction, from, event string) (context.Context, trace.Span) {
	attrs := CallAttrs(callID, direction, from)
	attrs = append(attrs, attribute.String(AttrCallEvent, event))

	return StartSpan(ctx, "whatsapp.call."+event,
		trace.WithAttributes(attrs...),
	)
}

// InstrumentCallAction creates a span for an outgoing calling API action
// (pre_accept, accept, reject, terminate).
func InstrumentCallAction(ctx context.Context, callID, action string) (context.Context, trace.Span) {
	return StartSpan(ctx, "whatsapp.action."+action,
		trace.WithAttributes(
			attribute.String(AttrCallID, callID),
			attribute.String("call.action", action),
		),
	)
}

// InstrumentBotSession creates the root span for one bot conversation
func InstrumentBotSession(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "bot.session",
		trace.WithAttributes(
			SessionAttrs(sessionID)...,
		),
	)
}
