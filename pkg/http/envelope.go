package http

import (
	"errors"
	"net/http"
	"reflect"

	"github.com/labstack/echo/v4"
)

// Envelope is the body of every API response. Status mirrors the HTTP status.
type Envelope struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Page is the data of list endpoints. Rows is never null.
type Page struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Code    string                 `json:"code,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Respond writes data in the envelope with the given status.
func Respond(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func OK(c echo.Context, data interface{}) error      { return Respond(c, http.StatusOK, data) }
func Created(c echo.Context, data interface{}) error { return Respond(c, http.StatusCreated, data) }

// List writes a page of rows.
func List(c echo.Context, rows interface{}, total int64) error {
	if v := reflect.ValueOf(rows); !v.IsValid() || (v.Kind() == reflect.Slice && v.IsNil()) {
		rows = []struct{}{}
	}
	return OK(c, &Page{Rows: rows, Total: total})
}

// Invalid writes 400 with the rejected fields.
func Invalid(c echo.Context, errs []FieldError) error {
	return Respond(c, http.StatusBadRequest, errs)
}

// Fail writes err as an AppError list. Anything that is not an AppError becomes an opaque 500.
func Fail(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return Respond(c, appErr.Status, []*AppError{appErr})
	}
	return Respond(c, http.StatusInternalServerError, []*AppError{Internal("internal error")})
}
