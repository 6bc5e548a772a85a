// Package router registers the HTTP routes of the API on an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/groupshare/internal/handler"
	"github.com/iliyamo/groupshare/internal/middleware"
)

// RegisterRoutes registers routes that need no authentication: the health
// check, the public catalogue, the access-link target and the payment
// provider's webhook.  cache may be nil.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, catalog *handler.CatalogHandler, purchases *handler.PurchaseHandler, cache *middleware.ResponseCache) {
	e.GET("/healthz", handler.Health(db))

	// Only the catalogue is cached; purchase state must never be served stale.
	e.GET("/v1/offers", catalog.ListOffers, cache.Middleware())
	e.GET("/v1/offers/:id", catalog.GetOffer, cache.Middleware())

	e.GET("/v1/access", purchases.Access)
	// Authenticated by X-Payment-Signature rather than a session token.
	e.POST("/v1/webhooks/payment", purchases.PaymentWebhook)
}
