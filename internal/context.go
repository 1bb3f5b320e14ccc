package internal

import (
	"context"
	"fmt"
)

// CtxKey is a context key bound to the type of the value it stores
type CtxKey[T any] struct {
	name string
}

func NewCtxKey[T any](name string) CtxKey[T] {
	return CtxKey[T]{name: name}
}

func (k CtxKey[T]) String() string {
	return fmt.Sprintf("Key[%T](%s)", *new(T), k.name)
}

// SetCtxKey stores a value in the context with type safety
func SetCtxKey[T any](ctx context.Context, key CtxKey[T], value T) context.Context {
	return context.WithValue(ctx, key, value)
}

// GetCtxKey retrieves a value from the context with type safety
func GetCtxKey[T any](ctx context.Context, key CtxKey[T]) (T, bool) {
	value, ok := ctx.Value(key).(T)
	return value, ok
}

var requestIDKey = NewCtxKey[string]("requestID")

// WithRequestID tags ctx with the id of the client request it serves. The id follows the request across services.
func WithRequestID(ctx context.Context, id string) context.Context {
	return SetCtxKey(ctx, requestIDKey, id)
}

// RequestID returns the request id ctx was tagged with
func RequestID(ctx context.Context) (string, bool) {
	id, ok := GetCtxKey(ctx, requestIDKey)
	return id, ok && id != ""
}

// RequestIDOr returns the request id of ctx, or fallback when there is none
func RequestIDOr(ctx context.Context, fallback string) string {
	if id, ok := RequestID(ctx); ok {
		return id
	}
	return fallback
}
