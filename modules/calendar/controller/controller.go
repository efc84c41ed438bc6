package controller

import (
	"time"

	"homeschool-api/core/controller"
	"homeschool-api/core/errors"
	"homeschool-api/core/middleware"
	"homeschool-api/core/utils"
	"homeschool-api/core/validator"
	"homeschool-api/modules/calendar/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type CalendarController struct {
	controller.BaseController
	CalendarService  service.CalendarService
	SyncService      service.SyncService
	ConflictService  service.ConflictService
	AutoBlockService service.AutoBlockService
}

func NewCalendarController(
	calendarSvc service.CalendarService,
	syncSvc service.SyncService,
	conflictSvc service.ConflictService,
	autoBlockSvc service.AutoBlockService,
) *CalendarController {
	return &CalendarController{
		BaseController:   controller.NewBaseController(),
		CalendarService:  calendarSvc,
		SyncService:      syncSvc,
		ConflictService:  conflictSvc,
		AutoBlockService: autoBlockSvc,
	}
}

type identity struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
}

func (controller *CalendarController) identity(c echo.Context) (identity, error) {
	orgID, ok := middleware.GetOrganizationID(c)
	if !ok {
		return identity{}, controller.Unauthorized(errors.ErrUnauthorized, "Missing organization")
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return identity{}, controller.Unauthorized(errors.ErrUnauthorized, "Missing user")
	}
	return identity{OrganizationID: orgID, UserID: userID}, nil
}

func (controller *CalendarController) connectionID(c echo.Context) (uuid.UUID, error) {
	id := utils.ToUUID(c.Param("id"))
	if id == uuid.Nil {
		return uuid.Nil, controller.BadRequest(errors.ErrInvalidInput, "Invalid connection id")
	}
	return id, nil
}

// bind decodes and validates the request body into req.
func (controller *CalendarController) bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return controller.BadRequest(errors.ErrInvalidRequestData, "Invalid request data")
	}
	if err := c.Validate(req); err != nil {
		return controller.ValidationError(errors.ErrInvalidInput, "Invalid request data", validator.Details(err))
	}
	return nil
}

func parseTimeParam(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
