package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatengine/server/internal/handlers"
	"chatengine/server/internal/middleware"
)

// Deps is everything the routes need
type Deps struct {
	Handler   *handlers.Handler
	JWTSecret string
	// Gatherer serves /metrics; nil leaves the endpoint out
	Gatherer prometheus.Gatherer
}

// NewApp builds the fiber app with the shared middleware stack
func NewApp(appName, corsOrigins string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      appName,
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    handlers.MaxAttachmentSize + 1024*1024,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} | ${locals:requestid} | ${status} | ${latency} | ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowCredentials: true,
	}))

	return app
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, deps Deps) {
	h := deps.Handler

	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// API v1 group
	api := app.Group("/api/v1")

	// Health check (public)
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "Chat engine is running",
		})
	})

	// WebSocket route, the token is checked inside the session handler
	api.Get("/ws", middleware.HandshakeRateLimiter(), handlers.WebSocketUpgrade, websocket.New(h.WebSocketHandler))

	auth := middleware.AuthMiddleware(deps.JWTSecret)

	// WebSocket stats (protected, for debugging)
	api.Get("/ws/stats", auth, h.WebSocketStats)

	// Thread routes (protected)
	threads := api.Group("/threads", auth)
	threads.Get("/", middleware.RelaxedRateLimiter(), h.ListThreads)
	threads.Post("/", middleware.ModerateRateLimiter(), h.CreateThread)
	threads.Get("/unread", h.TotalUnread)
	threads.Get("/:id", h.GetThread)
	threads.Get("/:id/unread", h.ThreadUnread)
	threads.Get("/:id/messages", middleware.RelaxedRateLimiter(), h.History)
	threads.Post("/:id/messages", middleware.ModerateRateLimiter(), h.SendMessage)
	threads.Post("/:id/attachments", middleware.UploadRateLimiter(), h.SendAttachment)
	threads.Put("/:id/mark", h.MarkThread)
	threads.Put("/:id/block", h.BlockThread)
	threads.Post("/:id/read", h.MarkRead)

	// Message routes (protected)
	messages := api.Group("/messages", auth)
	messages.Get("/search", middleware.RelaxedRateLimiter(), h.SearchMessages)
	messages.Patch("/:id", middleware.ModerateRateLimiter(), h.EditMessage)
	messages.Delete("/:id", middleware.ModerateRateLimiter(), h.DeleteMessage)
	messages.Post("/:id/reactions", middleware.ModerateRateLimiter(), h.AddReaction)
	messages.Delete("/:id/reactions/:emoji", middleware.ModerateRateLimiter(), h.RemoveReaction)

	// Presence (protected)
	api.Put("/presence", auth, h.UpdatePresence)
}
