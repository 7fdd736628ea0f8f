package common

import "github.com/labstack/echo/v4"

// SetSSEHeaders disables proxy buffering for a job event stream, so progress
// patches reach the client as they are sent. Call it before datastar.NewSSE,
// which writes the content type and cache headers itself.
func SetSSEHeaders(c echo.Context) {
	c.Response().Header().Set("X-Accel-Buffering", "no")
}
