package contextx

import (
	"context"
	"fmt"

	"github.com/rs/xid"
)

// HeaderTraceID carries the trace id between storefront services.
const HeaderTraceID = "X-Trace-Id"

type TraceID string

type contextKeyTraceID struct{}

func NewTraceID() TraceID {
	return TraceID(xid.New().String())
}

func (t TraceID) String() string {
	return string(t)
}

func WithTraceID(ctx context.Context, traceID TraceID) context.Context {
	return context.WithValue(ctx, contextKeyTraceID{}, traceID)
}

func TraceIDFromContext(ctx context.Context) (TraceID, error) {
	traceID, ok := ctx.Value(contextKeyTraceID{}).(TraceID)
	if !ok {
		return "", fmt.Errorf("trace id: %w", ErrNoValue)
	}

	return traceID, nil
}

// EnsureTraceID starts a trace for work that does not come from a request,
// such as scheduled jobs and queue tasks. An existing trace id is kept.
func EnsureTraceID(ctx context.Context) (context.Context, TraceID) {
	if traceID, err := TraceIDFromContext(ctx); err == nil {
		return ctx, traceID
	}

	traceID := NewTraceID()

	return WithTraceID(ctx, traceID), traceID
}
