package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var seen string
	r.Use(func(c *gin.Context) {
		seen = route(c)
		c.Next()
	})
	r.Use(Tracing(), PrometheusMiddleware())
	r.GET("/v1/games/:id/state", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		path   string
		status int
		route  string
	}{
		{"/v1/games/abc/state", http.StatusOK, "/v1/games/:id/state"},
		{"/v1/games/def/state", http.StatusOK, "/v1/games/:id/state"},
		{"/nope/123", http.StatusNotFound, "unmatched"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.route, seen)
		})
	}
}
