package ratelimit

import (
	"github.com/labstack/echo/v4"

	pkghttp "AlphaNebula/pkg/http"
)

// Middleware rejects requests over the per-client-IP budget with 429.
func Middleware(l *Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				c.Response().Header().Set("Retry-After", "1")
				return pkghttp.Fail(c, pkghttp.TooManyRequests("too many requests"))
			}
			return next(c)
		}
	}
}
