package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"chatengine/server/internal/apperr"
	"chatengine/server/internal/chat"
	"chatengine/server/internal/middleware"
)

func success(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func failure(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// respondError maps engine errors to HTTP statuses. Anything that is not one
// of the known kinds is logged and hidden behind a 500.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return failure(c, fiber.StatusNotFound, apperr.Message(err))
	case errors.Is(err, apperr.ErrForbidden):
		return failure(c, fiber.StatusForbidden, apperr.Message(err))
	case errors.Is(err, apperr.ErrBadRequest):
		return failure(c, fiber.StatusBadRequest, apperr.Message(err))
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return failure(c, fe.Code, fe.Message)
	}

	log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("Request failed")
	return failure(c, fiber.StatusInternalServerError, "Internal server error")
}

// ErrorHandler is the fiber ErrorHandler for errors escaping handlers
func ErrorHandler(c *fiber.Ctx, err error) error {
	return respondError(c, err)
}

func actor(c *fiber.Ctx) chat.Actor {
	return chat.Actor{TenantID: middleware.GetTenantID(c), UserID: middleware.GetUserID(c)}
}

func idParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequest("invalid %s", name)
	}
	return id, nil
}

func optionalBool(c *fiber.Ctx, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.BadRequest("invalid %s", name)
	}
	return &v, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	return nil
}
