package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/groupshare/internal/handler"
)

// RegisterSeller registers group and offer management under /v1.  Ownership
// of the group is checked in the handler, so any authenticated profile may
// call these routes.
func RegisterSeller(e *echo.Echo, c *handler.CatalogHandler, auth []echo.MiddlewareFunc) {
	g := e.Group("/v1", auth...)

	g.POST("/groups", c.CreateGroup)
	g.GET("/groups", c.ListGroups)
	g.GET("/groups/:id", c.GetGroup)
	g.PATCH("/groups/:id", c.UpdateGroup)
	g.DELETE("/groups/:id", c.DeleteGroup)

	g.POST("/offers", c.CreateOffer)
	g.PATCH("/offers/:id", c.UpdateOffer)
	g.DELETE("/offers/:id", c.DeleteOffer)
}
