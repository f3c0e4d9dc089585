package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	applogger "AlphaNebula/pkg/logger"
)

// Recover turns handler panics into a 500 envelope carrying the request id.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				l.Error("http handler panic",
					applogger.String("route", routeLabel(c)),
					applogger.String("request_id", RequestIDFrom(c)),
					applogger.String("panic", fmt.Sprint(r)),
					applogger.String("stack", string(debug.Stack())),
				)
				if c.Response().Committed {
					return
				}
				err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"status":  http.StatusInternalServerError,
					"message": http.StatusText(http.StatusInternalServerError),
					"data":    map[string]string{"request_id": RequestIDFrom(c)},
				})
			}()
			return next(c)
		}
	}
}
