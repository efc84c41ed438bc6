package controller

import (
	"strconv"

	"homeschool-api/modules/calendar/dto"

	"github.com/labstack/echo/v4"
)

// GetOAuthURL starts the OAuth flow for a provider.
// GET /api/v1/private/calendar/oauth/:provider/url
func (controller *CalendarController) GetOAuthURL(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}

	resp, err := controller.CalendarService.StartOAuth(ctx, c.Param("provider"), who.UserID)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}
	return controller.SuccessResponse(c, resp, "authorization url created")
}

// OAuthCallback completes the OAuth flow and stores the connection.
// POST /api/v1/private/calendar/oauth/:provider/callback
func (controller *CalendarController) OAuthCallback(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}

	req := new(dto.OAuthCallbackRequest)
	if err := controller.bind(c, req); err != nil {
		return err
	}

	conn, err := controller.CalendarService.CompleteOAuth(ctx, who.OrganizationID, who.UserID, c.Param("provider"), req)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}
	return controller.CreatedResponse(c, conn, "calendar connected")
}

// GET /api/v1/private/calendar/connections
func (controller *CalendarController) GetConnections(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}

	connections, err := controller.CalendarService.ListConnections(ctx, who.OrganizationID)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}
	return controller.SuccessResponse(c, connections, "get connections success")
}

// GET /api/v1/private/calendar/connections/:id
func (controller *CalendarController) GetConnection(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}
	id, err := controller.connectionID(c)
	if err != nil {
		return err
	}

	conn, err := controller.CalendarService.GetConnection(ctx, who.OrganizationID, id)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}
	return controller.SuccessResponse(c, conn, "get connection success")
}

// PATCH /api/v1/private/calendar/connections/:id
func (controller *CalendarController) UpdateConnection(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}
	id, err := controller.connectionID(c)
	if err != nil {
		return err
	}

	req := new(dto.UpdateConnectionRequest)
	if err := controller.bind(c, req); err != nil {
		return err
	}

	conn, err := controller.CalendarService.UpdateConnectionSettings(ctx, who.OrganizationID, id, req)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}
	return controller.SuccessResponse(c, conn, "update connection success")
}

// DELETE /api/v1/private/calendar/connections/:id
func (controller *CalendarController) DisconnectCalendar(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}
	id, err := controller.connectionID(c)
	if err != nil {
		return err
	}

	if err := controller.CalendarService.DisconnectCalendar(ctx, who.OrganizationID, id); err != nil {
		return controller.ErrorResponse(c, err)
	}
	return controller.SuccessResponse(c, nil, "calendar disconnected")
}

// GET /api/v1/private/calendar/connections/:id/calendars
func (controller *CalendarController) GetProviderCalendars(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}
	id, err := controller.connectionID(c)
	if err != nil {
		return err
	}

	calendars, err := controller.CalendarService.ListProviderCalendars(ctx, who.OrganizationID, id)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}
	return controller.SuccessResponse(c, calendars, "get calendars success")
}

// GET /api/v1/private/calendar/connections/:id/logs?limit=20
func (controller *CalendarController) GetSyncLogs(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}
	id, err := controller.connectionID(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	logs, err := controller.CalendarService.ListSyncLogs(ctx, who.OrganizationID, id, limit)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}
	return controller.SuccessResponse(c, logs, "get sync logs success")
}
