package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/groupshare/internal/model"
)

type ProfileStore interface {
	GetByID(ctx context.Context, id string) (model.Profile, error)
}

type ProfileHandler struct {
	store ProfileStore
	log   *zap.Logger
}

func NewProfileHandler(store ProfileStore, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{store: store, log: log}
}

// Me handles GET /v1/me.
func (h *ProfileHandler) Me(c echo.Context) error {
	uid, ok := callerID(c)
	if !ok {
		return unauthorized(c)
	}
	p, err := h.store.GetByID(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, struct {
		ID          string    `json:"id"`
		Email       string    `json:"email"`
		DisplayName string    `json:"displayName"`
		CreatedAt   time.Time `json:"createdAt"`
	}{p.ID, p.Email, p.DisplayName, p.CreatedAt})
}
