package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/joinspot/reservation-api/internal/model"
	"github.com/joinspot/reservation-api/internal/repository"
)

// NotificationHandler serves the in-app notification feed written by
// the reservation notifier.
type NotificationHandler struct {
	Notifications *repository.NotificationRepo
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(n *repository.NotificationRepo) *NotificationHandler {
	if n == nil {
		panic("nil repository passed to NewNotificationHandler")
	}
	return &NotificationHandler{Notifications: n}
}

// List handles GET /v1/notifications and returns the caller's feed,
// newest first.
func (h *NotificationHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	notifications, err := h.Notifications.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": notifications})
}
