package handlers

import (
	"strings"

	"imagevariants/internal/app"
	"imagevariants/internal/handlers/middleware"
	"imagevariants/internal/metrics"
	"imagevariants/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

type Handler struct {
	middleware middleware.Middleware
	log        logger.Logger
	router     fiber.Router
}

func Router(router fiber.Router, app *app.App) (err error) {
	router.Use(app.Middleware.TraceID())
	router.Use(app.Middleware.Metrics())

	router.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	WebSocketHandler(router, app.Websocket)

	// Local storage URLs are relative, so this server serves the objects.
	if app.Config.StorageDriver == "local" && strings.HasPrefix(app.Config.StoragePublicURL, "/") {
		router.Static(app.Config.StoragePublicURL, app.Config.StorageLocalPath)
	}

	api := router.Group("/api")
	HealthHandler(api, app.Config)
	NewImagesHandler(*app, api).Register()
	NewAdminHandler(*app, api).Register()

	return nil
}
