package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"thirdcoast.systems/mediagrab/cmd/web/handlers/api/download_api"
)

type Webserver struct {
	*echo.Echo
	svc download_api.Service
}

// requestValidator adapts validator/v10 to echo.Validator.
type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

func NewWebserver(ctx context.Context, svc download_api.Service) (*Webserver, error) {
	e := echo.New()
	e.Validator = &requestValidator{v: validator.New()}

	webserver := &Webserver{
		Echo: e,
		svc:  svc,
	}

	if err := webserver.registerRoutes(); err != nil {
		return nil, err
	}

	if err := webserver.setupMiddleware(); err != nil {
		return nil, err
	}

	return webserver, nil
}

func isEventStream(c echo.Context) bool {
	return strings.HasSuffix(c.Path(), "/events")
}

func (s *Webserver) setupMiddleware() error {
	s.HideBanner = true
	s.HidePort = true
	s.Use(middleware.BodyLimit("64K"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level:   5,
		Skipper: isEventStream,
	}))
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:      isEventStream,
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))

	return nil
}

func (s *Webserver) registerRoutes() error {
	apiGroup := s.Group("/api")
	apiGroup.POST("/info", download_api.HandleInfo(s.svc))
	apiGroup.GET("/destination", download_api.HandleDestination(s.svc))

	apiGroup.POST("/downloads", download_api.HandleCreate(s.svc))
	apiGroup.GET("/downloads", download_api.HandleIndex(s.svc))
	apiGroup.GET("/downloads/:id", download_api.HandleStatus(s.svc))
	apiGroup.POST("/downloads/:id/cancel", download_api.HandleCancel(s.svc))
	apiGroup.DELETE("/downloads/:id", download_api.HandleAcknowledge(s.svc))
	apiGroup.GET("/downloads/:id/events", download_api.HandleEvents(s.svc))

	// Health check
	s.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	return nil
}
