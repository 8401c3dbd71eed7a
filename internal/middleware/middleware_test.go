package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/broker/internal/logger"
)

func init() {
	// Set Gin to test mode to reduce noise in tests
	gin.SetMode(gin.TestMode)
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	t.Run("generates new request ID", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetRequestID(c))
		})

		w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))

		headerID := w.Header().Get(RequestIDHeader)
		if headerID == "" {
			t.Fatal("Expected X-Request-ID header to be set")
		}
		if w.Body.String() != headerID {
			t.Errorf("Expected body to contain request ID %s, got %s", headerID, w.Body.String())
		}
	})

	t.Run("uses existing request ID from header", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetRequestID(c))
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, "upstream-123")
		w := serve(router, req)

		if w.Body.String() != "upstream-123" {
			t.Errorf("Expected request ID upstream-123, got %s", w.Body.String())
		}
	})

	t.Run("replaces oversized upstream ID", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetRequestID(c))
		})

		oversized := strings.Repeat("x", maxRequestIDLength+1)
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, oversized)
		w := serve(router, req)

		if w.Body.String() == oversized || w.Body.String() == "" {
			t.Errorf("Expected a generated request ID, got %q", w.Body.String())
		}
	})

	t.Run("GetRequestID returns empty string if not set", func(t *testing.T) {
		c := &gin.Context{}
		if id := GetRequestID(c); id != "" {
			t.Errorf("Expected empty string, got %s", id)
		}
	})
}

func TestCORS(t *testing.T) {
	allowedOrigins := []string{"http://localhost:3000"}

	t.Run("allows request from allowed origin", func(t *testing.T) {
		router := gin.New()
		router.Use(CORS(allowedOrigins))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "OK")
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := serve(router, req)

		if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
			t.Error("Expected Access-Control-Allow-Origin header to be set")
		}
		if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Error("Expected Access-Control-Allow-Credentials header to be set")
		}
	})

	t.Run("does not set CORS headers for disallowed origin", func(t *testing.T) {
		router := gin.New()
		router.Use(CORS(allowedOrigins))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "OK")
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://evil.com")
		w := serve(router, req)

		if w.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("Expected no CORS headers for disallowed origin")
		}
	})

	t.Run("handles OPTIONS preflight for allowed origin", func(t *testing.T) {
		router := gin.New()
		router.Use(CORS(allowedOrigins))
		router.POST("/api/v1/analyze", func(c *gin.Context) {
			c.String(http.StatusOK, "OK")
		})

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/analyze", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := serve(router, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("Expected status 204 for OPTIONS, got %d", w.Code)
		}
		if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "POST") {
			t.Errorf("Expected POST to be allowed, got %q", w.Header().Get("Access-Control-Allow-Methods"))
		}
	})
}

func TestLogger(t *testing.T) {
	t.Run("stores request-scoped logger", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.NewWithWriter("production", &buf)
		router := gin.New()
		router.Use(RequestID())
		router.Use(Logger(log))
		router.GET("/api/v1/properties/:id/analysis", func(c *gin.Context) {
			if GetLogger(c) == nil {
				t.Error("Expected logger to be in context")
			}
			c.String(http.StatusOK, "OK")
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/properties/p1/analysis?verbose=1", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		serve(router, req)

		out := buf.String()
		for _, want := range []string{`"request_id":"req-42"`, `"route":"/api/v1/properties/:id/analysis"`, `"query":"verbose=1"`, `"status":200`} {
			if !strings.Contains(out, want) {
				t.Errorf("Expected log output to contain %s, got %s", want, out)
			}
		}
	})

	t.Run("logs client errors as warnings", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.NewWithWriter("production", &buf)
		router := gin.New()
		router.Use(Logger(log))
		router.GET("/missing", func(c *gin.Context) {
			c.Status(http.StatusNotFound)
		})

		serve(router, httptest.NewRequest(http.MethodGet, "/missing", nil))

		if !strings.Contains(buf.String(), `"level":"warn"`) {
			t.Errorf("Expected warn level for 404, got %s", buf.String())
		}
	})

	t.Run("GetLogger returns nil if not set", func(t *testing.T) {
		c := &gin.Context{}
		if GetLogger(c) != nil {
			t.Error("Expected nil logger")
		}
	})

	t.Run("LoggerOr falls back", func(t *testing.T) {
		fallback := logger.Nop()
		c := &gin.Context{}
		if LoggerOr(c, fallback) != fallback {
			t.Error("Expected fallback logger")
		}
	})
}

func TestRecovery(t *testing.T) {
	t.Run("recovers from panic and returns 500", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.Use(Recovery(logger.New("test")))
		router.GET("/panic", func(c *gin.Context) {
			panic("forecast exploded")
		})

		w := serve(router, httptest.NewRequest(http.MethodGet, "/panic", nil))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500 after panic, got %d", w.Code)
		}
		body := w.Body.String()
		if !strings.Contains(body, "INTERNAL_SERVER_ERROR") {
			t.Error("Expected error response to contain INTERNAL_SERVER_ERROR")
		}
		if !strings.Contains(body, "request_id") {
			t.Error("Expected error response to contain request_id")
		}
		if strings.Contains(body, "forecast exploded") {
			t.Error("Expected panic value to stay out of the response")
		}
	})

	t.Run("does not interfere with normal requests", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery(logger.New("test")))
		router.GET("/normal", func(c *gin.Context) {
			c.String(http.StatusOK, "OK")
		})

		w := serve(router, httptest.NewRequest(http.MethodGet, "/normal", nil))

		if w.Code != http.StatusOK || w.Body.String() != "OK" {
			t.Errorf("Expected 200 OK, got %d %s", w.Code, w.Body.String())
		}
	})
}

func TestTimeout(t *testing.T) {
	router := gin.New()
	router.Use(Timeout(50 * time.Millisecond))
	router.GET("/slow", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		if !ok {
			t.Error("Expected request context to carry a deadline")
		}
		if time.Until(deadline) > 50*time.Millisecond {
			t.Error("Expected deadline within the configured timeout")
		}

		<-c.Request.Context().Done()
		c.String(http.StatusOK, c.Request.Context().Err().Error())
	})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/slow", nil))

	if w.Body.String() != "context deadline exceeded" {
		t.Errorf("Expected deadline exceeded, got %s", w.Body.String())
	}
}

func TestMiddlewareStack(t *testing.T) {
	log := logger.New("test")

	router := gin.New()
	router.Use(RequestID())
	router.Use(Logger(log))
	router.Use(Recovery(log))
	router.Use(CORS([]string{"http://localhost:3000"}))
	router.Use(Timeout(time.Second))
	router.GET("/test", func(c *gin.Context) {
		if GetRequestID(c) == "" {
			t.Error("Expected request ID from RequestID middleware")
		}
		if GetLogger(c) == nil {
			t.Error("Expected logger from Logger middleware")
		}
		c.String(http.StatusOK, "OK")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := serve(router, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected X-Request-ID header")
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("Expected CORS headers")
	}
}
