package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorKindKey tells infrastructure errors apart from component failures.
const ErrorKindKey = "flowstudio.error.kind"

// SetError marks span as failed. attrs are attached to the recorded exception
// event. A nil err leaves the span untouched.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// SetFailure marks span as failed with a component failure message, which is
// an outcome of the run rather than a Go error.
func SetFailure(span trace.Span, message string) {
	span.SetAttributes(attribute.String(ErrorKindKey, "component"))
	span.SetStatus(codes.Error, message)
}
