package handlers

import (
	"errors"

	"github.com/docshare/conduit/internal/middleware"
	"github.com/docshare/conduit/internal/services"
	"github.com/docshare/conduit/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type NotificationsHandler struct {
	Notifications *services.NotificationService
}

func NewNotificationsHandler(notifications *services.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{Notifications: notifications}
}

func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	unreadOnly := c.QueryBool("unread", false)
	notifications, err := h.Notifications.ListForUser(c.UserContext(), currentUser.ID, unreadOnly)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing notifications")
	}
	return utils.Success(c, fiber.StatusOK, notifications)
}

func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	notificationID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid notification id")
	}

	if err := h.Notifications.MarkRead(c.UserContext(), currentUser.ID, notificationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "notification not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating notification")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "notification marked as read"})
}
