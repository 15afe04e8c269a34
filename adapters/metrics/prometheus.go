package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

// Collector owns the relay's Prometheus registry. It implements
// domain.Metrics and provides the echo middleware and /metrics handler.
type Collector struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	upstream *prometheus.HistogramVec
	frames   *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP requests handled, by route and status code.",
		}, []string{"route", "status"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Time spent on upstream chat completions.",
			// LLM latencies, 100ms to 2m.
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"mode", "outcome"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Upstream data frames seen while relaying, by kind.",
		}, []string{"kind"}),
	}

	c.registry.MustRegister(
		c.requests,
		c.upstream,
		c.frames,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveUpstream(mode, outcome string, elapsed time.Duration) {
	c.upstream.WithLabelValues(mode, outcome).Observe(elapsed.Seconds())
}

func (c *Collector) CountFrame(kind string) {
	c.frames.WithLabelValues(kind).Inc()
}

// Middleware counts every request by matched route and final status.
func (c *Collector) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		err := next(ctx)

		status := ctx.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if !ctx.Response().Committed {
				status = http.StatusInternalServerError
			}
		}
		route := ctx.Path()
		if route == "" {
			route = "unmatched"
		}
		c.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		return err
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
