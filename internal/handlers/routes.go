package handlers

import (
	"github.com/docshare/conduit/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

type Routes struct {
	Auth          *middleware.AuthMiddleware
	WebhookSecret string
	Webhook       *WebhookHandler
	Drives        *DrivesHandler
	Notifications *NotificationsHandler
}

func (r Routes) Register(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	api.Post("/webhooks/uploads", middleware.RequireWebhookToken(r.WebhookSecret), r.Webhook.Upload)

	driveRoutes := api.Group("/drives", r.Auth.RequireAuth)
	driveRoutes.Get("/", r.Drives.List)
	driveRoutes.Post("/", r.Drives.Create)
	driveRoutes.Get("/:id", r.Drives.Get)
	driveRoutes.Delete("/:id", r.Drives.Delete)
	driveRoutes.Post("/:id/members", r.Drives.AddMember)
	driveRoutes.Get("/:id/nodes", r.Drives.RootNodes)
	driveRoutes.Get("/:id/nodes/:nodeId/children", r.Drives.Children)
	driveRoutes.Get("/:id/tree", r.Drives.Tree)

	notificationRoutes := api.Group("/notifications", r.Auth.RequireAuth)
	notificationRoutes.Get("/", r.Notifications.List)
	notificationRoutes.Put("/:id/read", r.Notifications.MarkRead)
}
