package router

import (
	"homeschool-api/core/middleware"
	"homeschool-api/modules/calendar/controller"

	"github.com/labstack/echo/v4"
)

type CalendarRouter struct {
	controller *controller.CalendarController
}

func NewCalendarRouter(controller *controller.CalendarController) *CalendarRouter {
	return &CalendarRouter{
		controller: controller,
	}
}

func (r *CalendarRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	v1 := e.Group("/api/v1")

	calendarRoutes := v1.Group("/private/calendar")
	calendarRoutes.Use(mw.AuthMiddleware())

	// OAuth
	calendarRoutes.GET("/oauth/:provider/url", r.controller.GetOAuthURL)
	calendarRoutes.POST("/oauth/:provider/callback", r.controller.OAuthCallback)

	// Connections
	calendarRoutes.GET("/connections", r.controller.GetConnections)
	calendarRoutes.GET("/connections/:id", r.controller.GetConnection)
	calendarRoutes.PATCH("/connections/:id", r.controller.UpdateConnection)
	calendarRoutes.DELETE("/connections/:id", r.controller.DisconnectCalendar)
	calendarRoutes.GET("/connections/:id/calendars", r.controller.GetProviderCalendars)
	calendarRoutes.GET("/connections/:id/logs", r.controller.GetSyncLogs)

	// Sync
	calendarRoutes.POST("/connections/:id/sync", r.controller.SyncConnection)
	calendarRoutes.POST("/sync", r.controller.SyncAll)

	// Conflicts
	calendarRoutes.GET("/conflicts", r.controller.GetConflicts)
	calendarRoutes.GET("/conflicts/statistics", r.controller.GetConflictStatistics)
	calendarRoutes.POST("/conflicts/resolve", r.controller.ResolveConflict)
	calendarRoutes.POST("/auto-block", r.controller.AutoBlock)
}
