package ctxdata

import (
	"context"
)

type traceIDKey struct{}
type participantKey struct{}

var (
	traceIDKeyInstance     = traceIDKey{}
	participantKeyInstance = participantKey{}
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKeyInstance, traceID)
}

func GetTraceID(ctx context.Context) (string, bool) {
	v := ctx.Value(traceIDKeyInstance)
	traceID, ok := v.(string)
	return traceID, ok
}

// WithParticipant tags the context with the participant identifier of the
// submission being processed so every log line carries it.
func WithParticipant(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, participantKeyInstance, name)
}

func GetParticipant(ctx context.Context) (string, bool) {
	v := ctx.Value(participantKeyInstance)
	name, ok := v.(string)
	return name, ok
}
