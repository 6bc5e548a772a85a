package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/groupshare/internal/model"
)

// ProfileResolver maps an identity-provider subject to a local profile.
type ProfileResolver interface {
	GetOrCreate(ctx context.Context, externalID, email string) (model.Profile, error)
}

// ResolveProfile runs after JWTAuth and stores the caller's profile ID under
// "profile_id".  This is the only place identity is resolved; handlers read
// ProfileID and nothing else.
func ResolveProfile(store ProfileResolver, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sub, _ := c.Get(ctxAuthSubject).(string)
			if sub == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}
			email, _ := c.Get(ctxEmail).(string)
			p, err := store.GetOrCreate(c.Request().Context(), sub, email)
			if err != nil {
				log.Error("resolve profile", zap.String("subject", sub), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not resolve profile"})
			}
			c.Set(ctxProfileID, p.ID)
			return next(c)
		}
	}
}

// ProfileID returns the resolved profile of the caller, or "".
func ProfileID(c echo.Context) string {
	s, _ := c.Get(ctxProfileID).(string)
	return s
}
