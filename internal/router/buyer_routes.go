package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/groupshare/internal/handler"
)

// RegisterBuyer registers the purchase flow and the caller's own resources
// under /v1.  auth must authenticate the request and resolve the profile;
// limit guards the endpoints that reserve slots or charge money.
func RegisterBuyer(e *echo.Echo, p *handler.PurchaseHandler, n *handler.NotificationHandler, me *handler.ProfileHandler, auth []echo.MiddlewareFunc, limit echo.MiddlewareFunc) {
	g := e.Group("/v1", auth...)

	g.POST("/offers/:id/purchase", p.Purchase, limit)
	g.POST("/payments", p.Pay, limit)
	g.GET("/purchases", p.ListMine)
	g.POST("/purchases/:id/confirm-access", p.ConfirmAccess)

	g.GET("/me", me.Me)
	g.GET("/notifications", n.List)
	g.POST("/notifications/:id/read", n.MarkRead)
}
