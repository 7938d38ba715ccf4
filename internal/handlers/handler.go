package handlers

import (
	"chatengine/server/internal/chat"
	"chatengine/server/internal/presence"
	ws "chatengine/server/internal/websocket"
)

// Handler exposes the chat engine over HTTP and WebSocket
type Handler struct {
	engine    *chat.Engine
	presence  *presence.Tracker
	hub       *ws.Hub
	jwtSecret string
}

func New(engine *chat.Engine, tracker *presence.Tracker, hub *ws.Hub, jwtSecret string) *Handler {
	return &Handler{
		engine:    engine,
		presence:  tracker,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}
