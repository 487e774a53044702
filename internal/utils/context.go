// Package utils provides small helpers shared across the client: context
// keys, identifier generation, the HTTP client wrapper and bearer token
// parsing.
package utils

import (
	"context"
)

// contextKey is a private type for context keys, so keys never collide with
// string keys of other packages.
type contextKey string

// String implements fmt.Stringer.
func (c contextKey) String() string {
	return string(c)
}

// IdempotencyKeyCtxKey carries the idempotency key of the outbox entry
// being replayed.
var IdempotencyKeyCtxKey = contextKey("idempotencyKey")

// WithIdempotencyKey returns a copy of ctx carrying key.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, IdempotencyKeyCtxKey, key)
}

// GetIdempotencyKeyFromContext returns the key stored by [WithIdempotencyKey].
func GetIdempotencyKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(IdempotencyKeyCtxKey).(string)
	return key, ok && key != ""
}
