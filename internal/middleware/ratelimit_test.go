package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulsewire/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func init() {
	logger.InitLogger("test")
}

func TestRateLimitMiddleware_RedisFailure_FailsOpen(t *testing.T) {
	// Redis client pointed at an unreachable address to force the fallback
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:0",
		DialTimeout: 10 * time.Millisecond,
		ReadTimeout: 10 * time.Millisecond,
		MaxRetries:  0,
	})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(rdb, 10))
	r.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 (Fail Open), got %d", w.Code)
	}

	if val := w.Header().Get("X-RateLimit-Limit"); val != "10" {
		t.Errorf("Expected X-RateLimit-Limit header '10', got '%s'", val)
	}
}

func TestRateLimitMiddleware_Redis_Allows(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(rdb, 5))
	r.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if val := w.Header().Get("X-RateLimit-Limit"); val != "5" {
		t.Errorf("expected X-RateLimit-Limit '5', got '%s'", val)
	}
}
