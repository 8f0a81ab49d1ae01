package telemetry

import "context"

type requestIDKey struct{}

// WithRequestID stores the request id on ctx so background work can log it.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id carried by ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Detach returns a background context that keeps only the request id of ctx.
func Detach(ctx context.Context) context.Context {
	return WithRequestID(context.Background(), RequestID(ctx))
}
