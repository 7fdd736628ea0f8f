package download_api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/mediagrab/cmd/web/handlers/common"
)

type infoRequest struct {
	URL string `json:"url" validate:"required"`
}

// HandleInfo resolves a URL to its title, thumbnail and formats.
func HandleInfo(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req infoRequest
		if err := common.BindAndValidate(c, &req); err != nil {
			return err
		}

		info, err := svc.FetchInfo(c.Request().Context(), req.URL)
		if err != nil {
			slog.Warn("fetch info failed", "url", req.URL, "error", err)
			return common.FromError(err)
		}
		return c.JSON(http.StatusOK, info)
	}
}

// HandleDestination returns the folder downloads go to when none is given.
func HandleDestination(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		folder, err := svc.ChooseDestinationFolder(c.Request().Context())
		if err != nil {
			return common.FromError(err)
		}
		return c.JSON(http.StatusOK, map[string]string{"folder": folder})
	}
}
