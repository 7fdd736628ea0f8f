package common

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequireUUIDParam extracts a UUID route parameter or returns a 400 error.
func RequireUUIDParam(c echo.Context, param string) (string, error) {
	u, err := uuid.Parse(c.Param(param))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
	}
	return u.String(), nil
}

// BindAndValidate binds the request body into v and runs the validator.
func BindAndValidate(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return ErrBadRequest("invalid request body")
	}
	if err := c.Validate(v); err != nil {
		return ErrBadRequest(err.Error())
	}
	return nil
}
