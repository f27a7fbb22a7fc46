package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(key string) *gin.Engine {
		r := gin.New()
		r.GET("/admin", Middleware(key), func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return r
	}

	cases := []struct {
		name   string
		key    string
		header string
		value  string
		want   int
	}{
		{"bearer ok", "k1", "Authorization", "Bearer k1", http.StatusNoContent},
		{"x-api-key ok", "k1", "x-api-key", "k1", http.StatusNoContent},
		{"wrong key", "k1", "Authorization", "Bearer k2", http.StatusUnauthorized},
		{"missing", "k1", "", "", http.StatusUnauthorized},
		{"empty configured key", "", "x-api-key", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			w := httptest.NewRecorder()
			newRouter(tc.key).ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected status=%d, got=%d body=%s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}
