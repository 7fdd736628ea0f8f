package common

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/mediagrab/internal/media"
	"thirdcoast.systems/mediagrab/internal/resolver"
	"thirdcoast.systems/mediagrab/internal/service"
)

// ErrBadRequest returns a 400 Bad Request error.
func ErrBadRequest(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

// ErrNotFound returns a 404 Not Found error.
func ErrNotFound(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusNotFound, msg)
}

// ErrInternal returns a 500 Internal Server Error.
func ErrInternal(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusInternalServerError, msg)
}

// FromError maps an engine error to an HTTP error carrying the user message.
func FromError(err error) *echo.HTTPError {
	msg := media.UserMessage(err)
	var he *echo.HTTPError
	switch {
	case errors.Is(err, service.ErrPickerCancelled):
		he = ErrBadRequest("No folder selected.")
	case errors.Is(err, media.ErrJobNotFound):
		he = ErrNotFound(msg)
	case errors.Is(err, media.ErrConflict):
		he = echo.NewHTTPError(http.StatusConflict, msg)
	case resolver.IsUserError(err):
		he = echo.NewHTTPError(http.StatusUnprocessableEntity, msg)
	case errors.Is(err, media.ErrDestination):
		he = ErrBadRequest(msg)
	default:
		he = ErrInternal(msg)
	}
	return he.SetInternal(err)
}
