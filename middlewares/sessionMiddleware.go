package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/craftstock_backend/config"
	"github.com/mmdatafocus/craftstock_backend/utils"
)

const (
	HeaderCorrelationId  = "x-correlation-id"
	HeaderActor          = "x-actor"
	HeaderIdempotencyKey = "Idempotency-Key"
)

const maxIdempotencyKeyLength = 255

// CorrelationMiddleware generates a correlation id once per request and echoes it back.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := strings.TrimSpace(c.GetHeader(HeaderCorrelationId))
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header(HeaderCorrelationId, cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

// SessionMiddleware carries the caller's actor and idempotency key into the request context.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if actor := strings.TrimSpace(c.GetHeader(HeaderActor)); actor != "" {
			ctx = utils.SetActorInContext(ctx, actor)
		}
		if key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)); key != "" {
			if len(key) > maxIdempotencyKeyLength {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key is too long"})
				return
			}
			ctx = utils.SetIdempotencyKeyInContext(ctx, key)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ReadinessMiddleware returns 503 for app endpoints until ready reports true.
func ReadinessMiddleware(ready func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}
		if !ready() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}

// ErrorLogger logs only requests that collected gin errors.
func ErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			config.GetLogger().Error(c.Errors.String())
		}
	}
}
