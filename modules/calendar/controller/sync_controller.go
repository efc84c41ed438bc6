package controller

import (
	baseController "homeschool-api/core/controller"
	"homeschool-api/modules/calendar/dto"

	"github.com/labstack/echo/v4"
)

// SyncConnection runs one sync inline and returns its result.
// POST /api/v1/private/calendar/connections/:id/sync
func (controller *CalendarController) SyncConnection(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}
	id, err := controller.connectionID(c)
	if err != nil {
		return err
	}

	// Ownership check; the sync itself is keyed by connection only.
	if _, err := controller.CalendarService.GetConnection(ctx, who.OrganizationID, id); err != nil {
		return controller.ErrorResponse(c, err)
	}

	result := controller.SyncService.SyncConnection(ctx, id)
	if !result.Success {
		return syncErrorResponse(result)
	}
	return controller.SuccessResponse(c, result, "sync completed")
}

// POST /api/v1/private/calendar/sync
func (controller *CalendarController) SyncAll(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}

	results, err := controller.SyncService.SyncAllConnections(ctx, who.OrganizationID)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}
	return controller.SuccessResponse(c, dto.NewSyncAllResponse(results), "sync completed")
}

// syncErrorResponse reports a failed sync with its result attached.
func syncErrorResponse(result *dto.SyncResult) error {
	code := result.ErrorCode()
	msg := "sync failed"
	if len(result.Errors) > 0 {
		msg = result.Errors[0].Message
	}
	return baseController.NewErrorResponse(baseController.HTTPStatus(code), code, msg, result)
}
