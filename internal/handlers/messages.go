package handlers

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"chatengine/server/internal/apperr"
)

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

func (h *Handler) EditMessage(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req ContentRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	msg, err := h.engine.EditMessage(c.UserContext(), actor(c), id, req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusOK, msg)
}

// DeleteMessage soft-deletes; the response is the redacted message
func (h *Handler) DeleteMessage(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	msg, err := h.engine.DeleteMessage(c.UserContext(), actor(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusOK, msg)
}

func (h *Handler) AddReaction(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req ReactionRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	groups, err := h.engine.AddReaction(c.UserContext(), actor(c), id, req.Emoji)
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusOK, fiber.Map{"messageId": id, "reactions": groups})
}

func (h *Handler) RemoveReaction(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	emoji, err := url.PathUnescape(c.Params("emoji"))
	if err != nil {
		return respondError(c, apperr.BadRequest("invalid emoji"))
	}

	groups, err := h.engine.RemoveReaction(c.UserContext(), actor(c), id, emoji)
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusOK, fiber.Map{"messageId": id, "reactions": groups})
}

// SearchMessages searches every thread the caller participates in
func (h *Handler) SearchMessages(c *fiber.Ctx) error {
	page, err := h.engine.SearchMessages(c.UserContext(), actor(c), c.Query("q"), c.QueryInt("offset", 0), c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusOK, page)
}
