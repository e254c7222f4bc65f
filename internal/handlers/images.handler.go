package handlers

import (
	"io"
	"strings"

	"imagevariants/internal/app"
	imagesController "imagevariants/internal/controllers/images"
	"imagevariants/internal/handlers/middleware"
	"imagevariants/internal/types"
	"imagevariants/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

type ImagesHandler struct {
	Handler
	imagesController imagesController.ImagesControllerInterface
}

func NewImagesHandler(app app.App, router fiber.Router) *ImagesHandler {
	return newImagesHandler(app.Controllers.Images, app.Middleware, router)
}

func newImagesHandler(
	controller imagesController.ImagesControllerInterface,
	mw middleware.Middleware,
	router fiber.Router,
) *ImagesHandler {
	return &ImagesHandler{
		imagesController: controller,
		Handler: Handler{
			log:        logger.New("handlers").File("images_handler"),
			router:     router,
			middleware: mw,
		},
	}
}

func (h *ImagesHandler) Register() {
	images := h.router.Group("/images")

	images.Post("", h.upload)
	images.Post("/bulk-delete", h.bulkDelete)
	images.Delete("/:id", h.deleteImage)
	images.Get("/:id/family", h.getFamily)
	images.Delete("/:id/family", h.deleteFamily)
	images.Post("/:id/variants", h.deriveVariants)
	images.Delete("/:id/variants", h.deleteVariants)
	images.Get("/:id/activity", h.getActivity)
	images.Get("/:id/attachments", h.listAttachments)
	images.Post("/:id/attachments", h.attach)
	images.Delete("/:id/attachments", h.detach)
}

func (h *ImagesHandler) upload(c *fiber.Ctx) error {
	log := h.log.Function("upload").TraceFromContext(c.UserContext())

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return badRequest(c, "file could not be read")
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return badRequest(c, "file could not be read")
	}

	image, err := h.imagesController.Upload(c.UserContext(), types.UploadRequest{
		OriginalFilename: fileHeader.Filename,
		Data:             data,
		Folder:           c.FormValue("folder"),
		Tags:             splitTags(c.FormValue("tags")),
		Title:            c.FormValue("title"),
		AltText:          c.FormValue("altText"),
		Description:      c.FormValue("description"),
	})
	if err != nil {
		return respondError(c, log, "Failed to upload image", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"image": image,
	})
}

func (h *ImagesHandler) deriveVariants(c *fiber.Ctx) error {
	log := h.log.Function("deriveVariants").TraceFromContext(c.UserContext())

	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "Invalid image ID")
	}

	var req imagesController.DeriveVariantsRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			log.Warn("Invalid request body", "error", err)
			return badRequest(c, "Invalid request body")
		}
	}

	if c.QueryBool("async") {
		queued, err := h.imagesController.EnqueueDerivation(c.UserContext(), id, &req)
		if err != nil {
			return respondError(c, log, "Failed to queue variant derivation", err)
		}
		return c.Status(fiber.StatusAccepted).JSON(queued)
	}

	result, err := h.imagesController.DeriveVariants(c.UserContext(), id, &req)
	if err != nil {
		return respondError(c, log, "Failed to derive variants", err)
	}

	return c.JSON(result)
}

func (h *ImagesHandler) deleteVariants(c *fiber.Ctx) error {
	log := h.log.Function("deleteVariants").TraceFromContext(c.UserContext())

	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "Invalid image ID")
	}

	result, err := h.imagesController.DeleteVariants(c.UserContext(), id)
	if err != nil {
		return respondError(c, log, "Failed to delete variants", err)
	}

	return c.JSON(result)
}

func (h *ImagesHandler) getFamily(c *fiber.Ctx) error {
	log := h.log.Function("getFamily").TraceFromContext(c.UserContext())

	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "Invalid image ID")
	}

	family, err := h.imagesController.GetFamily(c.UserContext(), id)
	if err != nil {
		return respondError(c, log, "Failed to load image family", err)
	}

	return c.JSON(family)
}

func (h *ImagesHandler) deleteImage(c *fiber.Ctx) error {
	log := h.log.Function("deleteImage").TraceFromContext(c.UserContext())

	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "Invalid image ID")
	}

	if err := h.imagesController.DeleteImage(c.UserContext(), id); err != nil {
		return respondError(c, log, "Failed to delete image", err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ImagesHandler) deleteFamily(c *fiber.Ctx) error {
	log := h.log.Function("deleteFamily").TraceFromContext(c.UserContext())

	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "Invalid image ID")
	}

	result, err := h.imagesController.DeleteFamily(c.UserContext(), id)
	if err != nil {
		return respondError(c, log, "Failed to delete image family", err)
	}

	return c.JSON(result)
}

func (h *ImagesHandler) bulkDelete(c *fiber.Ctx) error {
	log := h.log.Function("bulkDelete").TraceFromContext(c.UserContext())

	var req imagesController.BulkDeleteRequest
	if err := c.BodyParser(&req); err != nil {
		log.Warn("Invalid request body", "error", err)
		return badRequest(c, "Invalid request body")
	}

	result, err := h.imagesController.BulkDeleteImages(c.UserContext(), &req)
	if err != nil {
		return respondError(c, log, "Bulk delete failed, no images were deleted", err)
	}

	return c.JSON(result)
}

func (h *ImagesHandler) getActivity(c *fiber.Ctx) error {
	log := h.log.Function("getActivity").TraceFromContext(c.UserContext())

	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "Invalid image ID")
	}

	activity, err := h.imagesController.GetActivity(c.UserContext(), id)
	if err != nil {
		return respondError(c, log, "Failed to load activity", err)
	}

	return c.JSON(fiber.Map{
		"activity": activity,
	})
}

func (h *ImagesHandler) listAttachments(c *fiber.Ctx) error {
	log := h.log.Function("listAttachments").TraceFromContext(c.UserContext())

	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "Invalid image ID")
	}

	attachments, err := h.imagesController.ListAttachments(c.UserContext(), id)
	if err != nil {
		return respondError(c, log, "Failed to load attachments", err)
	}

	return c.JSON(fiber.Map{
		"attachments": attachments,
	})
}

func (h *ImagesHandler) attach(c *fiber.Ctx) error {
	log := h.log.Function("attach").TraceFromContext(c.UserContext())

	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "Invalid image ID")
	}

	var req types.AttachRequest
	if err := c.BodyParser(&req); err != nil {
		log.Warn("Invalid request body", "error", err)
		return badRequest(c, "Invalid request body")
	}

	attachment, err := h.imagesController.Attach(c.UserContext(), id, &req)
	if err != nil {
		return respondError(c, log, "Failed to attach image", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"attachment": attachment,
	})
}

func (h *ImagesHandler) detach(c *fiber.Ctx) error {
	log := h.log.Function("detach").TraceFromContext(c.UserContext())

	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "Invalid image ID")
	}

	var req types.AttachRequest
	if err := c.BodyParser(&req); err != nil {
		log.Warn("Invalid request body", "error", err)
		return badRequest(c, "Invalid request body")
	}

	if err := h.imagesController.Detach(c.UserContext(), id, &req); err != nil {
		return respondError(c, log, "Failed to detach image", err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// splitTags accepts a comma separated tag list from a form field.
func splitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
