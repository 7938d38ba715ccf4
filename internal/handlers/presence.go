package handlers

import (
	"github.com/gofiber/fiber/v2"

	"chatengine/server/internal/middleware"
	"chatengine/server/internal/models"
)

type PresenceRequest struct {
	Status models.PresenceStatus `json:"status"`
}

// UpdatePresence sets the caller's status explicitly
func (h *Handler) UpdatePresence(c *fiber.Ctx) error {
	var req PresenceRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	user, err := h.presence.Update(c.UserContext(), middleware.GetTenantID(c), middleware.GetUserID(c), req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusOK, user)
}
