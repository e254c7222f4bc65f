package handlers

import (
	"imagevariants/internal/app"
	adminController "imagevariants/internal/controllers/admin"
	"imagevariants/internal/handlers/middleware"
	"imagevariants/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	Handler
	adminController adminController.AdminControllerInterface
}

func NewAdminHandler(app app.App, router fiber.Router) *AdminHandler {
	return newAdminHandler(app.Controllers.Admin, app.Middleware, router)
}

func newAdminHandler(
	controller adminController.AdminControllerInterface,
	mw middleware.Middleware,
	router fiber.Router,
) *AdminHandler {
	return &AdminHandler{
		adminController: controller,
		Handler: Handler{
			log:        logger.New("handlers").File("admin_handler"),
			router:     router,
			middleware: mw,
		},
	}
}

func (h *AdminHandler) Register() {
	admin := h.router.Group("/admin")

	admin.Get("/jobs", h.listJobs)
	admin.Post("/jobs/:name/trigger", h.triggerJob)
	admin.Get("/orphans", h.findOrphans)
}

func (h *AdminHandler) listJobs(c *fiber.Ctx) error {
	return c.JSON(h.adminController.ListJobs(c.UserContext()))
}

func (h *AdminHandler) triggerJob(c *fiber.Ctx) error {
	log := h.log.Function("triggerJob").TraceFromContext(c.UserContext())

	name := c.Params("name")
	if err := h.adminController.TriggerJob(c.UserContext(), name); err != nil {
		return respondError(c, log, "Failed to run job", err)
	}

	return c.JSON(fiber.Map{
		"job":    name,
		"status": "completed",
	})
}

func (h *AdminHandler) findOrphans(c *fiber.Ctx) error {
	log := h.log.Function("findOrphans").TraceFromContext(c.UserContext())

	result, err := h.adminController.FindOrphans(c.UserContext())
	if err != nil {
		return respondError(c, log, "Failed to scan for orphan variants", err)
	}

	return c.JSON(result)
}
