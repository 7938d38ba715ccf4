package handlers

import (
	"context"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"chatengine/server/internal/apperr"
	"chatengine/server/internal/chat"
	"chatengine/server/internal/models"
)

// MaxAttachmentSize caps a single attachment upload
const MaxAttachmentSize = 10 * 1024 * 1024 // 10MB

type FlagRequest struct {
	Value *bool `json:"value"`
}

type MarkReadRequest struct {
	MessageID *int64 `json:"messageId,omitempty"`
}

type ContentRequest struct {
	Content string `json:"content"`
}

// ListThreads returns the caller's threads, most recently active first
func (h *Handler) ListThreads(c *fiber.Ctx) error {
	marked, err := optionalBool(c, "marked")
	if err != nil {
		return respondError(c, err)
	}
	blocked, err := optionalBool(c, "blocked")
	if err != nil {
		return respondError(c, err)
	}

	page, err := h.engine.ListThreads(c.UserContext(), actor(c), chat.ListThreadsInput{
		Page:    c.QueryInt("page", 1),
		Limit:   c.QueryInt("limit", 0),
		Marked:  marked,
		Blocked: blocked,
		Search:  c.Query("search"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusOK, page)
}

// CreateThread creates a thread or returns the existing direct thread
func (h *Handler) CreateThread(c *fiber.Ctx) error {
	var req chat.CreateThreadInput
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	thread, err := h.engine.CreateThread(c.UserContext(), actor(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusCreated, thread)
}

func (h *Handler) GetThread(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	thread, err := h.engine.GetThread(c.UserContext(), actor(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusOK, thread)
}

func (h *Handler) ThreadUnread(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	count, err := h.engine.UnreadCount(c.UserContext(), actor(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusOK, fiber.Map{"threadId": id, "unreadCount": count})
}

func (h *Handler) TotalUnread(c *fiber.Ctx) error {
	summary, err := h.engine.TotalUnread(c.UserContext(), actor(c))
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusOK, summary)
}

func (h *Handler) MarkThread(c *fiber.Ctx) error {
	return h.setFlag(c, h.engine.SetMarked)
}

func (h *Handler) BlockThread(c *fiber.Ctx) error {
	return h.setFlag(c, h.engine.SetBlocked)
}

func (h *Handler) setFlag(c *fiber.Ctx, set func(context.Context, chat.Actor, int64, bool) (*models.ThreadDTO, error)) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req FlagRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if req.Value == nil {
		return respondError(c, apperr.BadRequest("value is required"))
	}

	thread, err := set(c.UserContext(), actor(c), id, *req.Value)
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusOK, thread)
}

// MarkRead advances the caller's read watermark
func (h *Handler) MarkRead(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req MarkReadRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}
	}

	receipt, err := h.engine.MarkRead(c.UserContext(), actor(c), id, req.MessageID)
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusOK, receipt)
}

// History pages backwards through a thread
func (h *Handler) History(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	page, err := h.engine.History(c.UserContext(), actor(c), id, int64(c.QueryInt("cursor", 0)), c.QueryInt("pageSize", 0))
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusOK, page)
}

func (h *Handler) SendMessage(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req ContentRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	msg, err := h.engine.SendMessage(c.UserContext(), actor(c), id, req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusCreated, msg)
}

// SendAttachment accepts a multipart "file" plus an optional "content" caption
func (h *Handler) SendAttachment(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return respondError(c, apperr.BadRequest("No file uploaded"))
	}
	if file.Size > MaxAttachmentSize {
		return respondError(c, apperr.BadRequest("File size exceeds limit of 10MB (uploaded: %.2fMB)", float64(file.Size)/(1024*1024)))
	}

	f, err := file.Open()
	if err != nil {
		return respondError(c, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return respondError(c, err)
	}

	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	msg, err := h.engine.SendAttachment(c.UserContext(), actor(c), id, chat.AttachmentInput{
		Data:     data,
		Name:     file.Filename,
		MimeType: strings.ToLower(mimeType),
		Content:  c.FormValue("content"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return success(c, fiber.StatusCreated, msg)
}
