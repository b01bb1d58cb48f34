package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

func write(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{Status: status, Message: http.StatusText(status), Data: data})
}

// SuccessResponse writes data in the 200 envelope.
func SuccessResponse(c echo.Context, data interface{}) error {
	return write(c, http.StatusOK, data)
}

// BadRequestResponse writes validation failures in the 400 envelope.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return write(c, http.StatusBadRequest, data)
}

// AppErrorResponse writes an AppError with its own status. Other errors are
// reported as a bare 500 so internals do not leak.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return write(c, appErr.Status, []*AppError{appErr})
	}
	return write(c, http.StatusInternalServerError, "Something went wrong")
}
