package middleware

import (
	"strconv"
	"time"

	"imagevariants/internal/metrics"

	"github.com/gofiber/fiber/v2"
)

// Metrics records request counts and latency labelled by the matched route
// pattern, so /api/images/:id is one series rather than one per id.
func (m *Middleware) Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		metrics.RecordRequest(
			c.Method(),
			c.Route().Path,
			strconv.Itoa(status),
			time.Since(start).Seconds(),
		)
		return err
	}
}
