package utils

import (
	"context"

	"github.com/mmdatafocus/craftstock_backend/appctx"
)

var (
	ContextKeyActor          = appctx.ContextKeyActor
	ContextKeyCorrelationId  = appctx.ContextKeyCorrelationId
	ContextKeyIdempotencyKey = appctx.ContextKeyIdempotencyKey
)

const systemActor = "System"

func GetActorFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyActor)
}

// ActorOrSystem falls back to "System" for background callers (dispatcher, cmd tools).
func ActorOrSystem(ctx context.Context) string {
	if ctx != nil {
		if v, ok := GetActorFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return systemActor
}

func SetActorInContext(ctx context.Context, actor string) context.Context {
	return appctx.Set(ctx, ContextKeyActor, actor)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetIdempotencyKeyFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyIdempotencyKey)
}

func SetIdempotencyKeyInContext(ctx context.Context, key string) context.Context {
	return appctx.Set(ctx, ContextKeyIdempotencyKey, key)
}
