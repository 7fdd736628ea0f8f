package download_api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/mediagrab/cmd/web/handlers/common"
)

// HandleCancel stops a job. Unknown and finished jobs answer 200 as well.
func HandleCancel(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}
		if err := svc.Cancel(id); err != nil {
			return common.FromError(err)
		}
		slog.Info("cancel requested", "job_id", id)
		return c.JSON(http.StatusOK, map[string]any{"status": "cancelling"})
	}
}

// HandleAcknowledge forgets a finished job. Running jobs answer 409.
func HandleAcknowledge(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}
		removed, err := svc.Acknowledge(id)
		if err != nil {
			return common.FromError(err)
		}
		if !removed {
			return echo.NewHTTPError(http.StatusConflict, "Download is still running.")
		}
		return c.NoContent(http.StatusNoContent)
	}
}
