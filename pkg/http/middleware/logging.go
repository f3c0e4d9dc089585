package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "AlphaNebula/pkg/logger"
)

// RequestLogging logs one line per request. Successful requests log at debug,
// client errors at warn and server errors at error.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", routeLabel(c)),
				applogger.String("request_id", RequestIDFrom(c)),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Int64("bytes", res.Size),
				applogger.Duration("duration_ms", time.Since(start)),
			}
			rl := l.WithTrace(req.Context())
			switch {
			case res.Status >= 500:
				rl.Error("http request", append(fields, applogger.Error(err))...)
			case res.Status >= 400:
				rl.Warn("http request", fields...)
			default:
				rl.Debug("http request", fields...)
			}
			return nil
		}
	}
}
