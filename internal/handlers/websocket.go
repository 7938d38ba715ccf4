package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"chatengine/server/internal/middleware"
	"chatengine/server/internal/utils"
	ws "chatengine/server/internal/websocket"
)

// WebSocketUpgrade checks if the request should be upgraded to WebSocket
func WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}

	return failure(c, fiber.StatusUpgradeRequired, "WebSocket upgrade required")
}

// WebSocketHandler authenticates the session and serves it until it drops.
// The token comes from ?token= or the Authorization header; a bad token
// closes the socket, with no payload, before anything is registered.
func (h *Handler) WebSocketHandler(c *websocket.Conn) {
	token := c.Query("token")
	if token == "" {
		token = middleware.BearerToken(c.Headers("Authorization"))
	}

	claims, err := utils.ValidateToken(h.jwtSecret, token)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket authentication failed")
		_ = c.Close()
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		_ = c.Close()
		return
	}

	ws.NewClient(c, h.hub, claims.TenantID, userID, claims.Username).Serve()
}

// WebSocketStats returns connection counts for this instance
func (h *Handler) WebSocketStats(c *fiber.Ctx) error {
	return success(c, fiber.StatusOK, h.hub.Stats())
}
