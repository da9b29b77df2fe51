package analyses

import "context"

type jobIDKey struct{}

// WithJobID attaches a correlation ID to the context for logging. Handlers
// seed it from the request ID so log lines from the background pass can be
// tied back to the request that started it.
func WithJobID(ctx context.Context, jobID string) context.Context {
	if ctx == nil || jobID == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

func jobIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(jobIDKey{}).(string); ok {
		return id
	}
	return ""
}

// detachedWithJobID derives a fresh background context that keeps only the
// correlation ID, so the pass outlives the HTTP request that started it.
func detachedWithJobID(ctx context.Context) context.Context {
	id := jobIDFromContext(ctx)
	if id == "" {
		return context.Background()
	}
	return WithJobID(context.Background(), id)
}
