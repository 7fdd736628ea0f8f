package download_api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/mediagrab/cmd/web/handlers/common"
)

// HandleIndex lists tracked jobs, oldest first.
func HandleIndex(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, svc.List())
	}
}

// HandleStatus returns one job snapshot.
func HandleStatus(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}
		snap, err := svc.Get(id)
		if err != nil {
			return common.FromError(err)
		}
		return c.JSON(http.StatusOK, snap)
	}
}
