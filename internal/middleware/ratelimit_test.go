package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping",
		func(c *gin.Context) { c.Set(UserIDKey, c.Query("user")); c.Next() },
		RateLimit(0.001, 2),
		func(c *gin.Context) { c.Status(http.StatusNoContent) },
	)

	hit := func(user string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping?user="+user, nil))
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, hit("a"))
	assert.Equal(t, http.StatusNoContent, hit("a"))
	assert.Equal(t, http.StatusTooManyRequests, hit("a"))
	assert.Equal(t, http.StatusNoContent, hit("b"), "limits are per user")
	assert.Equal(t, http.StatusNoContent, hit(""))
}

func TestRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", RateLimit(0, 0), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}
