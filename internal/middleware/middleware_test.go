package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looma/see-practice-api/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func serve(router *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	router.ServeHTTP(w, req)
	return w
}

func ok(c *gin.Context) { c.Status(http.StatusOK) }

func TestRateLimiter_Limit(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewRateLimiter(client)

	router := gin.New()
	cfg := RateLimitConfig{MaxRequests: 2, Window: time.Minute, KeyPrefix: "rl:test"}
	router.POST("/a", limiter.Limit(cfg), ok)
	router.POST("/b", limiter.Limit(cfg), ok)

	for i := 0; i < 2; i++ {
		w := serve(router, http.MethodPost, "/a", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(1-i), w.Header().Get("X-RateLimit-Remaining"))
	}

	w := serve(router, http.MethodPost, "/a", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"error_type":"rate_limited"`)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Счетчики по маршрутам
	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/b", nil).Code)

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/a", nil).Code)
}

func TestRateLimiter_LimitByIPSharesCounter(t *testing.T) {
	_, client := newTestRedis(t)
	limiter := NewRateLimiter(client)

	router := gin.New()
	group := router.Group("/api", limiter.LimitByIP(RateLimitConfig{MaxRequests: 1, Window: time.Minute, KeyPrefix: "rl:group"}))
	group.GET("/a", ok)
	group.GET("/b", ok)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/a", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/api/b", nil).Code)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewRateLimiter(client)
	mr.Close()

	router := gin.New()
	router.GET("/a", limiter.Limit(RateLimitConfig{MaxRequests: 1, Window: time.Minute, KeyPrefix: "rl"}), ok)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/a", nil).Code)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(nil)

	router := gin.New()
	router.GET("/a", limiter.Limit(AuthRateLimitConfig(0)), ok)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/a", nil).Code)
}

func TestAdminMiddleware(t *testing.T) {
	tokens, err := auth.NewAdminTokenService("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	token, _, err := tokens.GenerateToken()
	require.NoError(t, err)

	router := gin.New()
	router.GET("/admin", NewAdminMiddleware(tokens).RequireAdmin(), func(c *gin.Context) {
		claims, ok := AdminClaims(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.Role)
	})

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantType string
	}{
		{name: "missing", header: "", wantCode: http.StatusUnauthorized, wantType: "token_missing"},
		{name: "bad format", header: "Token abc", wantCode: http.StatusUnauthorized, wantType: "token_format"},
		{name: "invalid", header: "Bearer abc.def.ghi", wantCode: http.StatusUnauthorized, wantType: "token_invalid"},
		{name: "valid", header: "Bearer " + token, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("Authorization", tt.header)
			}
			w := serve(router, http.MethodGet, "/admin", header)
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantType != "" {
				assert.Contains(t, w.Body.String(), `"error_type":"`+tt.wantType+`"`)
			} else {
				assert.Equal(t, auth.RoleAdmin, w.Body.String())
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	router := gin.New()
	router.Use(RequestLogger())
	router.GET("/a", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c))
	})

	w := serve(router, http.MethodGet, "/a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, err := uuid.Parse(w.Body.String())
	assert.NoError(t, err)
	assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))

	id := uuid.NewString()
	header := http.Header{}
	header.Set(RequestIDHeader, id)
	w = serve(router, http.MethodGet, "/a", header)
	assert.Equal(t, id, w.Body.String())

	header.Set(RequestIDHeader, "not-a-uuid")
	w = serve(router, http.MethodGet, "/a", header)
	assert.NotEqual(t, "not-a-uuid", w.Body.String())
}
