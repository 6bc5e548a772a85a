package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/groupshare/internal/middleware"
	"github.com/iliyamo/groupshare/internal/repository"
	"github.com/iliyamo/groupshare/internal/service"
)

// callerID returns the resolved profile of the caller.
func callerID(c echo.Context) (string, bool) {
	id := middleware.ProfileID(c)
	return id, id != ""
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// writeError maps workflow and store errors to status codes.  Unexpected
// errors are logged and answered with a generic 500.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var perr *service.PaymentError
	switch {
	case errors.As(err, &perr):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": perr.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrTokenInvalid):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, repository.ErrUnavailable):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrExhausted):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	log.Error("request failed",
		zap.String("route", c.Path()),
		zap.String("method", c.Request().Method),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
