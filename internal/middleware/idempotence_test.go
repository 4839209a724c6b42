package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newIdempotenceRouter(t *testing.T, handled *int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// A nil client enforces the invariant: requests without a key must
	// never reach redis.
	r.POST("/weight", Idempotence(nil), func(c *gin.Context) {
		*handled++
		c.JSON(http.StatusCreated, gin.H{"ok": 1})
	})
	r.GET("/weight", Idempotence(nil), func(c *gin.Context) {
		*handled++
		c.JSON(http.StatusOK, gin.H{"ok": 1})
	})
	return r
}

func TestIdempotenceIgnoresKeylessDuplicates(t *testing.T) {
	handled := 0
	r := newIdempotenceRouter(t, &handled)

	// Two scales weighing identical produce send identical payloads.
	// Both are legitimate samples and both must land.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/weight", strings.NewReader(`{"device_id":"scale-01","weight":1.2}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("request %d: status = %d, want 201 (body=%s)", i+1, w.Code, w.Body.String())
		}
	}
	if handled != 2 {
		t.Errorf("handled = %d, want 2", handled)
	}
}

func TestIdempotenceSkipsReads(t *testing.T) {
	handled := 0
	r := newIdempotenceRouter(t, &handled)

	req := httptest.NewRequest(http.MethodGet, "/weight", nil)
	req.Header.Set(idempotenceHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || handled != 1 {
		t.Errorf("status = %d, handled = %d; want 200 and 1", w.Code, handled)
	}
}
