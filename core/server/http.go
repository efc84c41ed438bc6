package server

import (
	"context"
	"fmt"
	"net/http"

	"homeschool-api/core/constants"
	"homeschool-api/core/logger"
	"homeschool-api/core/metrics"
	"homeschool-api/core/middleware"
	"homeschool-api/core/validator"
	"homeschool-api/modules/notification"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

// NewEcho builds the HTTP surface: health, metrics and the private API.
func NewEcho(app *App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validator.New()

	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())
	e.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			logger.Info("HTTP:Request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		if err := app.DB.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	mw := middleware.NewMiddleware(app.Config.Security.JWTSecret)
	notification.Init(e.Group("/api/v1"), app.DB, mw)
	app.Calendar.RegisterRoutes(e, mw)
	return e
}

// Serve runs the HTTP server until ctx is cancelled, then drains requests.
func Serve(ctx context.Context, app *App) error {
	e := NewEcho(app)
	cfg := app.Config.Server
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server:Serve:Listening", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	logger.Info("Server:Serve:Shutdown")
	return e.Shutdown(shutdownCtx)
}
