package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()

	c.CountFrame("content")
	c.CountFrame("content")
	c.CountFrame("dropped")
	c.ObserveUpstream("stream", "ok", 300*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.frames.WithLabelValues("content")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.frames.WithLabelValues("dropped")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.upstream))
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	c := NewCollector()
	e := echo.New()
	e.Use(c.Middleware)
	e.GET("/ok", func(ctx echo.Context) error { return ctx.NoContent(http.StatusOK) })
	e.GET("/teapot", func(ctx echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) })
	e.GET("/boom", func(ctx echo.Context) error { return errors.New("boom") })

	for _, path := range []string{"/ok", "/ok", "/teapot", "/boom"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("/ok", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("/teapot", "418")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("/boom", "500")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.CountFrame("passthrough")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `relay_stream_frames_total{kind="passthrough"} 1`))
}
