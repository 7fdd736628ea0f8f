package download_api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/mediagrab/cmd/web/handlers/common"
	"thirdcoast.systems/mediagrab/internal/media"
)

type createRequest struct {
	URL    string `json:"url" validate:"required"`
	Kind   string `json:"kind" validate:"required,oneof=video audio"`
	Folder string `json:"folder"`
}

// HandleCreate starts a download. An empty folder uses the default destination.
func HandleCreate(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createRequest
		if err := common.BindAndValidate(c, &req); err != nil {
			return err
		}

		kind, err := media.ParseKind(req.Kind)
		if err != nil {
			return common.ErrBadRequest(err.Error())
		}

		ctx := c.Request().Context()
		folder := req.Folder
		if folder == "" {
			if folder, err = svc.ChooseDestinationFolder(ctx); err != nil {
				return common.FromError(err)
			}
		}

		h, err := svc.StartDownload(ctx, req.URL, kind, folder)
		if err != nil {
			slog.Warn("start download failed", "url", req.URL, "kind", req.Kind, "folder", folder, "error", err)
			return common.FromError(err)
		}
		return c.JSON(http.StatusAccepted, h)
	}
}
