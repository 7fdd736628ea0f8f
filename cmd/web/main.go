package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"thirdcoast.systems/mediagrab/cmd/web/internal/web"
	"thirdcoast.systems/mediagrab/internal/application"
	"thirdcoast.systems/mediagrab/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting web service")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	app, err := application.New(ctx, *conf, application.NewYtDlpProvider(ctx, *conf), nil)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	e, err := web.NewWebserver(ctx, app.Service)
	if err != nil {
		slog.Error("failed to create webserver", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := app.Run(ctx); err != nil {
			slog.Error("job reaper stopped", "error", err)
		}
	}()

	addr := ":" + strconv.Itoa(conf.WebServerPort)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Listening", "addr", addr, "download_dir", conf.DownloadDir)
		serverErr <- e.Start(addr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = e.Shutdown(shutdownCtx)
	// Running downloads are cancelled; their part files are removed.
	if err := app.Close(shutdownCtx); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}
	cancel()
	slog.Info("Web service stopped")

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
