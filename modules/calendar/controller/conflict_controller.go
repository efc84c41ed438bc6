package controller

import (
	"homeschool-api/core/errors"
	"homeschool-api/modules/calendar/dto"
	"homeschool-api/modules/calendar/entity"

	"github.com/labstack/echo/v4"
)

// GET /api/v1/private/calendar/conflicts?start_date=&end_date=&severity=
func (controller *CalendarController) GetConflicts(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}

	filter := dto.ConflictFilter{Severity: entity.Severity(c.QueryParam("severity"))}
	if filter.StartDate, err = parseTimeParam(c, "start_date"); err != nil {
		return controller.BadRequest(errors.ErrInvalidInput, "start_date must be RFC3339")
	}
	if filter.EndDate, err = parseTimeParam(c, "end_date"); err != nil {
		return controller.BadRequest(errors.ErrInvalidInput, "end_date must be RFC3339")
	}
	if err := c.Validate(&filter); err != nil {
		return controller.ValidationError(errors.ErrInvalidInput, "Invalid filter", nil)
	}

	conflicts, err := controller.ConflictService.GetUnresolvedConflicts(ctx, who.OrganizationID, filter)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}
	return controller.SuccessResponse(c, conflicts, "get conflicts success")
}

// GET /api/v1/private/calendar/conflicts/statistics
func (controller *CalendarController) GetConflictStatistics(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}

	stats, err := controller.ConflictService.GetConflictStatistics(ctx, who.OrganizationID)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}
	return controller.SuccessResponse(c, stats, "get conflict statistics success")
}

// POST /api/v1/private/calendar/conflicts/resolve
func (controller *CalendarController) ResolveConflict(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}

	req := new(dto.ResolveConflictRequest)
	if err := controller.bind(c, req); err != nil {
		return err
	}

	resolution, err := controller.ConflictService.ResolveConflict(ctx, who.OrganizationID, who.UserID, req)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}
	return controller.CreatedResponse(c, resolution, "conflict resolved")
}

// POST /api/v1/private/calendar/auto-block
func (controller *CalendarController) AutoBlock(c echo.Context) error {
	ctx := c.Request().Context()

	who, err := controller.identity(c)
	if err != nil {
		return err
	}

	req := new(dto.AutoBlockRequest)
	if err := controller.bind(c, req); err != nil {
		return err
	}

	blocked, err := controller.AutoBlockService.AutoBlockWorkEvents(ctx, who.OrganizationID, req.EventIDs)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}
	return controller.SuccessResponse(c, dto.AutoBlockResponse{Blocked: blocked}, "auto-block completed")
}
