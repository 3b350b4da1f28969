// Package otel is a thin tracer-from-context helper, used the same way
// around every repository
// call and use-case method: ctx, span := tracer.Start(ctx, "name");
// defer span.End().
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey struct{}

// WithContext attaches a tracer to ctx for downstream retrieval.
func WithContext(ctx context.Context, tracer trace.Tracer) context.Context {
	return context.WithValue(ctx, ctxKey{}, tracer)
}

// FromContext returns the tracer attached to ctx, or the global tracer
// for this library name if none was attached.
func FromContext(ctx context.Context) trace.Tracer {
	if t, ok := ctx.Value(ctxKey{}).(trace.Tracer); ok {
		return t
	}

	return otel.Tracer("bodaboda-insure-core")
}

// HandleSpanError records err on span, sets its status to Error and
// annotates it with msg.
func HandleSpanError(span *trace.Span, msg string, err error) {
	if span == nil || err == nil {
		return
	}

	(*span).RecordError(err)
	(*span).SetStatus(codes.Error, msg+": "+err.Error())
}
