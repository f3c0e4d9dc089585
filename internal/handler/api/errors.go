package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"AlphaNebula/internal/domain/models"
	xhttp "AlphaNebula/pkg/http"
	xlogger "AlphaNebula/pkg/logger"
)

// toAppError maps domain errors onto HTTP errors.
func toAppError(err error) *xhttp.AppError {
	var (
		appErr *xhttp.AppError
		verr   *models.ValidationError
		cerr   *models.CacheComputationError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &verr):
		return xhttp.Invalidf(verr.Field, "%s", verr.Message).WithError(err)
	case errors.Is(err, models.ErrAliasConflict):
		return xhttp.Conflict("alias is owned by a higher precedence source").WithError(err)
	case errors.Is(err, models.ErrAliasNotFound):
		return xhttp.NotFound("alias not found").WithError(err)
	case errors.Is(err, models.ErrReviewItemNotFound):
		return xhttp.NotFound("review item not found").WithError(err)
	case errors.As(err, &cerr):
		return xhttp.Unavailable("resolution temporarily unavailable").WithError(err)
	default:
		return xhttp.Internal("internal error").WithError(err)
	}
}

// fail logs err and writes the mapped error response.
func fail(c echo.Context, l *xlogger.Logger, op string, err error) error {
	appErr := toAppError(err)
	fields := []xlogger.Field{xlogger.String("op", op), xlogger.Int("status", appErr.Status), xlogger.Error(err)}
	if appErr.Status >= http.StatusInternalServerError {
		l.Error("request failed", fields...)
	} else {
		l.Warn("request rejected", fields...)
	}
	return xhttp.Fail(c, appErr)
}
