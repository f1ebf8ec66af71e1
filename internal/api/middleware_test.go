package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/your-org/presensi/internal/observability"
)

func TestLoggingMiddlewareSkipsWebSocketDurations(t *testing.T) {
	r := gin.New()
	r.Use(LoggingMiddleware())
	r.GET("/mw/plain/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/mw/socket", func(c *gin.Context) { c.Status(http.StatusOK) })

	series := func() int { return testutil.CollectAndCount(observability.HTTPRequestDuration) }
	before := series()

	req := httptest.NewRequest(http.MethodGet, "/mw/socket", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, before, series())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mw/plain/1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mw/plain/2", nil))
	assert.Equal(t, before+1, series())
}
