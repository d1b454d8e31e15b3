package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"shopchat/internal/config"
	"shopchat/internal/monitor"
	jwtutil "shopchat/internal/utils"
	"shopchat/pkg/limiter"
	"shopchat/pkg/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) utils.Response {
	t.Helper()
	var resp utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		method string
		status int
	}{
		{name: "GET request", path: "/test", method: "GET", status: 200},
		{name: "POST request", path: "/test", method: "POST", status: 201},
		{name: "Error request", path: "/error", method: "GET", status: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(Logger())
			r.GET("/test", func(c *gin.Context) { c.JSON(200, gin.H{"message": "ok"}) })
			r.POST("/test", func(c *gin.Context) { c.JSON(201, gin.H{"message": "created"}) })
			r.GET("/error", func(c *gin.Context) { c.JSON(500, gin.H{"error": "internal error"}) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("test panic") })
	r.GET("/normal", func(c *gin.Context) { c.JSON(200, gin.H{"message": "ok"}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, utils.CodeInternalError, decode(t, w).Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/normal", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name           string
		origin         string
		method         string
		expectedStatus int
		checkHeaders   bool
	}{
		{name: "Valid origin", origin: "http://localhost:3000", method: "GET", expectedStatus: 200, checkHeaders: true},
		{name: "Preflight", origin: "http://localhost:3000", method: "OPTIONS", expectedStatus: 204, checkHeaders: true},
		{name: "No origin", method: "GET", expectedStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(CORS())
			r.GET("/test", func(c *gin.Context) { c.JSON(200, gin.H{"message": "ok"}) })

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.checkHeaders {
				assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestAuth(t *testing.T) {
	validator := func(token string) (*UserInfo, error) {
		switch token {
		case "valid_token":
			return &UserInfo{ID: 1, Role: "user"}, nil
		case "admin_token":
			return &UserInfo{ID: 2, Role: "admin"}, nil
		}
		return nil, assert.AnError
	}

	tests := []struct {
		name           string
		token          string
		role           string
		expectedStatus int
		expectedUserID float64
	}{
		{name: "Valid token", token: "Bearer valid_token", expectedStatus: 200, expectedUserID: 1},
		{name: "Invalid token", token: "Bearer invalid_token", expectedStatus: 401},
		{name: "No token", token: "", expectedStatus: 401},
		{name: "Invalid format", token: "invalid_format", expectedStatus: 401},
		{name: "Empty bearer", token: "Bearer ", expectedStatus: 401},
		{name: "Wrong role", token: "Bearer valid_token", role: "admin", expectedStatus: 403},
		{name: "Required role", token: "Bearer admin_token", role: "admin", expectedStatus: 200, expectedUserID: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(AuthWithConfig(AuthConfig{TokenValidator: validator, RequiredRole: tt.role}))
			r.GET("/test", func(c *gin.Context) {
				userID, _ := GetUserID(c)
				c.JSON(200, gin.H{"user_id": userID})
			})

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.token != "" {
				req.Header.Set(AuthorizationHeader, tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == 200 {
				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.expectedUserID, body["user_id"])
			}
		})
	}
}

func TestAuthSkipPaths(t *testing.T) {
	r := gin.New()
	r.Use(AuthWithConfig(AuthConfig{
		TokenValidator: func(string) (*UserInfo, error) { return nil, assert.AnError },
		SkipPaths:      []string{"/ping"},
	}))
	r.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTValidator(t *testing.T) {
	verifier, err := jwtutil.NewTokenVerifier(config.AuthConfig{Secret: "s3cret"})
	require.NoError(t, err)

	claims := &jwtutil.Claims{
		UserID: 9,
		Role:   "user",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	info, err := JWTValidator(verifier)(token)
	require.NoError(t, err)
	assert.Equal(t, &UserInfo{ID: 9, Role: "user"}, info)

	_, err = JWTValidator(verifier)(token + "x")
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	tests := []struct {
		name           string
		timeout        time.Duration
		handlerDelay   time.Duration
		expectedStatus int
	}{
		{name: "Normal request", timeout: 200 * time.Millisecond, handlerDelay: 10 * time.Millisecond, expectedStatus: 200},
		{name: "Timeout request", timeout: 20 * time.Millisecond, handlerDelay: time.Second, expectedStatus: 504},
		{name: "Disabled", timeout: 0, handlerDelay: 10 * time.Millisecond, expectedStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(Timeout(tt.timeout))
			r.GET("/test", func(c *gin.Context) {
				select {
				case <-time.After(tt.handlerDelay):
					c.JSON(200, gin.H{"message": "ok"})
				case <-c.Request.Context().Done():
				}
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Tenant"); id == "1" {
			c.Set(UserIDKey, int64(1))
		}
		c.Next()
	})
	r.Use(RateLimit(limiter.NewTokenBucketLimiter(rate.Limit(1), 2)))
	r.GET("/test", func(c *gin.Context) { c.String(200, "ok") })

	call := func(tenant string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		if tenant != "" {
			req.Header.Set("X-Tenant", tenant)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, 200, call("1"))
	assert.Equal(t, 200, call("1"))
	assert.Equal(t, http.StatusTooManyRequests, call("1"))

	// anonymous callers use a separate bucket
	assert.Equal(t, 200, call(""))
}

func TestRateLimitDisabled(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(nil))
	r.GET("/test", func(c *gin.Context) { c.String(200, "ok") })

	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		require.Equal(t, 200, w.Code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(failingLimiter{}))
	r.GET("/test", func(c *gin.Context) { c.String(200, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, 200, w.Code)
}

func TestObserve(t *testing.T) {
	metrics := monitor.NewMetricsCollector("test")
	r := gin.New()
	r.Use(Observe(metrics, nil))
	r.GET("/api/v1/customers/:id/messages", func(c *gin.Context) { c.String(200, "ok") })

	for _, path := range []string{"/api/v1/customers/1/messages", "/api/v1/customers/2/messages"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		require.Equal(t, 200, w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest("GET", "/metrics", nil))
	body := scrape.Body.String()
	assert.Contains(t, body, `test_http_request_total{method="GET",path="/api/v1/customers/:id/messages",status="200"} 2`)
	assert.Contains(t, body, `test_http_request_total{method="GET",path="unmatched",status="404"} 1`)
}
