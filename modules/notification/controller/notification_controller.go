package controller

import (
	"homeschool-api/core/controller"
	"homeschool-api/core/errors"
	"homeschool-api/core/middleware"
	"homeschool-api/core/params"
	"homeschool-api/core/validator"
	"homeschool-api/modules/notification/dto"
	"homeschool-api/modules/notification/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type NotificationController struct {
	service service.NotificationService
	controller.BaseController
}

func NewNotificationController(service service.NotificationService) *NotificationController {
	return &NotificationController{
		service:        service,
		BaseController: controller.NewBaseController(),
	}
}

// GetMyNotifications lists the current user's notifications, newest first.
// GET /api/v1/private/notifications?page=1&limit=20
func (c *NotificationController) GetMyNotifications(ctx echo.Context) error {
	orgID, userID, err := c.identity(ctx)
	if err != nil {
		return err
	}

	queryParams := params.NewQueryParams(ctx)
	result, err := c.service.GetMyNotifications(ctx.Request().Context(), orgID, userID, *queryParams)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, result, "Notifications retrieved successfully")
}

// PUT /api/v1/private/notifications/mark-read
func (c *NotificationController) MarkAsRead(ctx echo.Context) error {
	orgID, userID, err := c.identity(ctx)
	if err != nil {
		return err
	}

	req := new(dto.MarkAsReadRequest)
	if err := ctx.Bind(req); err != nil {
		return c.BadRequest(errors.ErrInvalidRequestData, "Invalid request body")
	}
	if err := ctx.Validate(req); err != nil {
		return c.ValidationError(errors.ErrInvalidInput, "Invalid request data", validator.Details(err))
	}

	if err := c.service.MarkAsRead(ctx.Request().Context(), orgID, userID, req.IDs); err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, nil, "Marked as read successfully")
}

// PUT /api/v1/private/notifications/mark-all-read
func (c *NotificationController) MarkAllAsRead(ctx echo.Context) error {
	orgID, userID, err := c.identity(ctx)
	if err != nil {
		return err
	}

	if err := c.service.MarkAllAsRead(ctx.Request().Context(), orgID, userID); err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, nil, "Marked all as read successfully")
}

// GET /api/v1/private/notifications/unread-count
func (c *NotificationController) CountUnread(ctx echo.Context) error {
	orgID, userID, err := c.identity(ctx)
	if err != nil {
		return err
	}

	count, err := c.service.CountUnread(ctx.Request().Context(), orgID, userID)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, dto.UnreadCountResponse{Count: count}, "Unread count retrieved")
}

func (c *NotificationController) identity(ctx echo.Context) (uuid.UUID, uuid.UUID, error) {
	orgID, ok := middleware.GetOrganizationID(ctx)
	if !ok {
		return uuid.Nil, uuid.Nil, c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return uuid.Nil, uuid.Nil, c.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}
	return orgID, userID, nil
}
