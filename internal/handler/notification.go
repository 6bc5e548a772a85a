package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/groupshare/internal/model"
)

type NotificationStore interface {
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

// NotificationHandler is the caller's inbox.
type NotificationHandler struct {
	store NotificationStore
	log   *zap.Logger
}

func NewNotificationHandler(store NotificationStore, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{store: store, log: log}
}

// List handles GET /v1/notifications?unread=true&limit=.
func (h *NotificationHandler) List(c echo.Context) error {
	uid, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	limit, err := intParam(c, "limit", 50)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
	}
	items, err := h.store.ListByUser(c.Request().Context(), uid, c.QueryParam("unread") == "true", limit)
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, toNotification(n))
	}
	return c.JSON(http.StatusOK, out)
}

// MarkRead handles POST /v1/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	uid, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.store.MarkRead(c.Request().Context(), uid, c.Param("id")); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
