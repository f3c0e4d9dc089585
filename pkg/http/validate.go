package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(wireName)
	return v
}

// wireName reports fields by their wire name so errors match what callers sent.
func wireName(f reflect.StructField) string {
	for _, tag := range []string{"json", "query", "param"} {
		name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

// RegisterStringRule adds a validation tag for string fields. message is a format
// receiving the field name.
func RegisterStringRule(tag, message string, ok func(string) bool) {
	_ = validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return ok(fl.Field().String())
	})
	messages[tag] = func(fe validator.FieldError) string { return fmt.Sprintf(message, fe.Field()) }
}

// Bind decodes the body, path and query into req, applies default tags and validates.
func Bind(c echo.Context, req interface{}) []FieldError {
	if err := c.Bind(req); err != nil {
		return toFieldErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toFieldErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toFieldErrors(err)
	}
	return nil
}

// Validate checks v outside of a request.
func Validate(v interface{}) []FieldError {
	if err := validate.Struct(v); err != nil {
		return toFieldErrors(err)
	}
	return nil
}

func toFieldErrors(err error) []FieldError {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		out := make([]FieldError, 0, len(ves))
		for _, fe := range ves {
			out = append(out, FieldError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: message(fe),
				Params:  params(fe),
			})
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []FieldError{{Code: "ERR_MALFORMED", Message: fmt.Sprintf("%v", he.Message)}}
	}
	return []FieldError{{Code: "ERR_MALFORMED", Message: err.Error()}}
}

var messages = map[string]func(fe validator.FieldError) string{
	"required": func(fe validator.FieldError) string { return fe.Field() + " is required" },
	"url":      func(fe validator.FieldError) string { return fe.Field() + " must be a valid URL" },
	"oneof": func(fe validator.FieldError) string {
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	},
	"min":  bound("at least"),
	"max":  bound("at most"),
	"gte":  bound("at least"),
	"lte":  bound("at most"),
	"gt":   func(fe validator.FieldError) string { return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()) },
	"lt":   func(fe validator.FieldError) string { return fmt.Sprintf("%s must be less than %s", fe.Field(), fe.Param()) },
	"uuid": func(fe validator.FieldError) string { return fe.Field() + " must be a UUID" },
}

// bound phrases a length limit for strings and a value limit otherwise.
func bound(word string) func(fe validator.FieldError) string {
	return func(fe validator.FieldError) string {
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be %s %s characters", fe.Field(), word, fe.Param())
		}
		return fmt.Sprintf("%s must be %s %s", fe.Field(), word, fe.Param())
	}
}

func message(fe validator.FieldError) string {
	if m, ok := messages[fe.Tag()]; ok {
		return m(fe)
	}
	return fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
}

func params(fe validator.FieldError) map[string]interface{} {
	switch fe.Tag() {
	case "min", "gte":
		return map[string]interface{}{"min": fe.Param()}
	case "max", "lte":
		return map[string]interface{}{"max": fe.Param()}
	case "gt", "lt":
		return map[string]interface{}{"value": fe.Param()}
	case "oneof":
		return map[string]interface{}{"options": strings.Split(fe.Param(), " ")}
	}
	return nil
}
