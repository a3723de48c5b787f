package util

import (
	"context"

	"github.com/google/uuid"
)

type key string

const requestIDKey = key("request-id")

// WithRequestID returns a context carrying id, generating a fresh one if
// id is empty. pkg/logger's *Context methods log it via GetRequestID. No
// engine code calls WithRequestID, so engine log lines carry an empty
// request_id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request ID stashed in ctx, or "" if none was set.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
