package middlewares

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/craftstock_backend/utils"
	"github.com/redis/go-redis/v9"
)

func echoContext(c *gin.Context) {
	ctx := c.Request.Context()
	actor := utils.ActorOrSystem(ctx)
	key, _ := utils.GetIdempotencyKeyFromContext(ctx)
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	c.String(http.StatusOK, actor+"|"+key+"|"+cid)
}

func TestSessionMiddlewareCarriesHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationMiddleware(), SessionMiddleware())
	r.GET("/echo", echoContext)

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set(HeaderActor, "mya")
	req.Header.Set(HeaderIdempotencyKey, "k-1")
	req.Header.Set(HeaderCorrelationId, "cid-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Body.String() != "mya|k-1|cid-7" {
		t.Fatalf("context = %q", w.Body.String())
	}
	if w.Header().Get(HeaderCorrelationId) != "cid-7" {
		t.Fatalf("correlation id not echoed")
	}

	req = httptest.NewRequest(http.MethodGet, "/echo", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	parts := strings.Split(w.Body.String(), "|")
	if parts[0] != "System" || parts[1] != "" || parts[2] == "" {
		t.Fatalf("defaults = %q", w.Body.String())
	}
}

func TestSessionMiddlewareRejectsLongIdempotencyKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware())
	r.GET("/echo", echoContext)

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set(HeaderIdempotencyKey, strings.Repeat("k", maxIdempotencyKeyLength+1))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRateLimiterPassesWithoutRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(func() *redis.Client { return nil }, 1, time.Minute)
	r := gin.New()
	r.Use(limiter.Middleware)
	r.GET("/echo", echoContext)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/echo", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i, w.Code)
		}
	}
}

func TestRateLimiterFromEnvDisabledByDefault(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "")
	if RateLimiterFromEnv(func() *redis.Client { return nil }) != nil {
		t.Fatalf("limiter should be disabled unless RATE_LIMIT_ENABLED=true")
	}
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "5")
	l := RateLimiterFromEnv(func() *redis.Client { return nil })
	if l == nil || l.limit != 5 || l.window != time.Minute {
		t.Fatalf("limiter = %+v", l)
	}
}
