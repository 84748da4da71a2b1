package server

import (
	"time"

	"study-planner/internal/helper"
	"study-planner/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const (
	HeaderSessionID  = "X-Session-ID"
	DefaultSessionID = models.DefaultSourceID
	sessionLocal     = "session_id"
)

// RequestLogger tags each request with an id and writes one access log line. Errors are
// rendered here so the logged status is the one the client sees.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		reqID := c.Get(fiber.HeaderXRequestID)
		if reqID == "" {
			reqID, _ = helper.GenerateUUID()
		}
		c.Set(fiber.HeaderXRequestID, reqID)

		if chainErr := c.Next(); chainErr != nil {
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		evt := log.Info()
		if status >= fiber.StatusInternalServerError {
			evt = log.Error()
		}
		evt.Str("request_id", reqID).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("took", time.Since(start)).
			Msg("request")
		return nil
	}
}

// SessionID resolves the X-Session-ID header into the index key used for the request.
func SessionID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderSessionID)
		if id == "" {
			id = DefaultSessionID
		}
		if !models.ValidSourceID(id) {
			return NewError(fiber.StatusBadRequest, "invalid "+HeaderSessionID+" header")
		}
		c.Locals(sessionLocal, id)
		return c.Next()
	}
}

func sourceID(c *fiber.Ctx) string {
	if id, ok := c.Locals(sessionLocal).(string); ok && id != "" {
		return id
	}
	return DefaultSessionID
}
