package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// ReadAndValidateRequest binds req, fills its defaults and validates it. A
// non-nil result is a []ValidationError ready to be written as the body.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		out := make([]ValidationError, 0, len(ves))
		for _, fe := range ves {
			out = append(out, fieldError(fe))
		}
		return out
	}

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: msg}}
}

// fieldError covers the tags used by the request models; anything else gets
// a generic message.
func fieldError(fe validator.FieldError) ValidationError {
	field, param := fe.Field(), fe.Param()
	ve := ValidationError{Code: "ERR_" + strings.ToUpper(fe.Tag()), Field: field}
	switch fe.Tag() {
	case "required":
		ve.Message = field + " is required"
	case "datetime":
		ve.Message = fmt.Sprintf("%s must be a date formatted as %s", field, param)
		ve.Params = map[string]interface{}{"layout": param}
	case "oneof":
		ve.Message = fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
		ve.Params = map[string]interface{}{"options": strings.Fields(param)}
	case "gte":
		ve.Message = fmt.Sprintf("%s must be at least %s", field, param)
		ve.Params = map[string]interface{}{"min": param}
	case "lte":
		ve.Message = fmt.Sprintf("%s must be at most %s", field, param)
		ve.Params = map[string]interface{}{"max": param}
	default:
		ve.Message = fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
	return ve
}
