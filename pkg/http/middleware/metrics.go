package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	applogger "AlphaNebula/pkg/logger"
)

var (
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nebula_http_request_duration_seconds",
			Help:    "HTTP request duration by route template",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"route", "method", "class"},
	)
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nebula_http_in_flight_requests",
		Help: "Requests currently being served",
	})
	httpResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_http_responses_total",
			Help: "Responses by route template and exact status",
		},
		[]string{"route", "method", "status"},
	)

	regOnce sync.Once
)

// Metrics records request metrics labelled by route template, so /signals/:ticker
// stays one series regardless of ticker. Requests slower than slowThreshold are logged.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	regOnce.Do(func() {
		prometheus.MustRegister(httpDuration, httpInFlight, httpResponses)
	})
	if l == nil {
		l = applogger.Nop()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpInFlight.Inc()
			defer httpInFlight.Dec()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route, method := routeLabel(c), c.Request().Method
			code := c.Response().Status
			took := time.Since(start)
			httpDuration.WithLabelValues(route, method, statusClass(code)).Observe(took.Seconds())
			httpResponses.WithLabelValues(route, method, strconv.Itoa(code)).Inc()

			if slowThreshold > 0 && took >= slowThreshold {
				l.Warn("http request slow",
					applogger.String("route", route),
					applogger.String("request_id", RequestIDFrom(c)),
					applogger.Int("status", code),
					applogger.Duration("duration_ms", took),
				)
			}
			return nil
		}
	}
}

func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
