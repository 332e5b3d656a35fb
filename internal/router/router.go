package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-session/internal/handler"
	"github.com/iliyamo/table-session/internal/middleware"
)

// RegisterRoutes registers the routes that sit outside /v1: liveness
// and readiness checks.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// SessionMiddleware groups the middleware applied to the session API.
// Nil entries are skipped.
type SessionMiddleware struct {
	Identity  echo.MiddlewareFunc // optional JWT identity, applied to every /v1 route
	RateLimit echo.MiddlewareFunc // applied to routes that write
	Cache     echo.MiddlewareFunc // applied to the table status read
}

// RegisterSessions registers the table check-in and group ordering API
// under /v1.
func RegisterSessions(e *echo.Echo, h *handler.SessionHandler, mw SessionMiddleware) {
	g := e.Group("/v1")
	if mw.Identity != nil {
		g.Use(mw.Identity)
	}
	writes := optional(mw.RateLimit)
	cached := optional(mw.Cache)

	// Read-only views.  The table status is what the check-in screen
	// polls, so it goes through the response cache.
	g.GET("/tables/:id", h.GetTable, cached...)
	g.GET("/sessions/:id/participants", h.ListParticipants)
	g.GET("/sessions/:id/summary", h.Summary)

	// Writes are rate limited per IP, diner and route.
	g.POST("/tables/:id/join", h.JoinTable, writes...)
	g.PATCH("/participants/:id", h.RenameParticipant, writes...)
	g.DELETE("/participants/:id", h.LeaveSession, writes...)
	g.POST("/orders/:id/transfer", h.TransferOrder, writes...)
}

func optional(m echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if m == nil {
		return nil
	}
	return []echo.MiddlewareFunc{m}
}
