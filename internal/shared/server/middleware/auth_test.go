package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newIdentityRouter(env string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Identity(env))
	router.GET("/api/v1/repos", func(c *gin.Context) {
		c.String(http.StatusOK, UserIDFromContext(c))
	})
	router.GET("/api/v1/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.OPTIONS("/api/v1/repos", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestIdentityAllowsOptionsWithoutIdentity(t *testing.T) {
	router := newIdentityRouter("production")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/repos", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestIdentityReadsHeader(t *testing.T) {
	router := newIdentityRouter("production")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/repos", nil)
	req.Header.Set("X-User-Id", "user-42")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.String() != "user-42" {
		t.Fatalf("expected user-42, got %q", resp.Body.String())
	}
}

func TestIdentityRejectsMissingHeaderOutsideDev(t *testing.T) {
	router := newIdentityRouter("production")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/repos", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestIdentityDevFallsBackToDemoUser(t *testing.T) {
	router := newIdentityRouter("dev")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/repos", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Body.String() != demoUserID {
		t.Fatalf("expected demo user, got %q", resp.Body.String())
	}
}

func TestIdentitySkipsHealth(t *testing.T) {
	router := newIdentityRouter("production")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
