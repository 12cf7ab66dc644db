package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindow(redis.Addr(), "", "", 1, time.Hour, nil)
	require.NoError(t, err)

	engine := gin.New()
	engine.POST("/limited", Middleware(limiter, "code"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	engine.POST("/open", Middleware(nil, "code"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := []int{}
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/limited", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusTooManyRequests}, codes)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/open", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}
