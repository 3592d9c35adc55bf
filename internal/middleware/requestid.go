package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/utils"
)

const (
	HeaderRequestID = "X-Request-ID"
	CtxRequestIDKey = "request_id"
)

// RequestID keeps a caller-supplied id or assigns a fresh one.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = utils.UUID()
		}
		c.Set(HeaderRequestID, id)
		c.Locals(CtxRequestIDKey, id)
		return c.Next()
	}
}
