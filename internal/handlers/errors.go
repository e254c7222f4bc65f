package handlers

import (
	"errors"

	"imagevariants/internal/types"
	"imagevariants/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	var bulkErr *types.BulkDeleteError
	switch {
	case errors.As(err, &bulkErr):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, types.ErrValidation),
		errors.Is(err, types.ErrInvalidVariantType),
		errors.Is(err, types.ErrMalformedFamilyTag):
		return fiber.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, types.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, types.ErrStorageTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, types.ErrSourceUnavailable),
		errors.Is(err, types.ErrStorageWriteFailure):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Server errors are logged and
// reported with the generic message; client errors echo the error text. Errors
// about a specific image always carry its id, display title and cause.
func respondError(c *fiber.Ctx, log logger.Logger, message string, err error) error {
	status := statusFor(err)
	body := fiber.Map{"error": err.Error()}

	var imageErr *types.ImageError
	if errors.As(err, &imageErr) {
		body["imageId"] = imageErr.ImageID
		body["title"] = imageErr.Title
		if imageErr.Err != nil {
			body["cause"] = imageErr.Err.Error()
		}
	}

	var bulkErr *types.BulkDeleteError
	if errors.As(err, &bulkErr) {
		body["error"] = message
		body["errors"] = bulkErr.Items
	}

	if status >= fiber.StatusInternalServerError {
		log.Er(message, err)
		body["error"] = message
	} else {
		log.Warn(message, "status", status, "error", err)
	}

	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": message})
}
