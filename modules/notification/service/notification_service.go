package service

import (
	"context"
	"fmt"

	"homeschool-api/core/errors"
	"homeschool-api/core/logger"
	"homeschool-api/core/params"
	"homeschool-api/modules/notification/dto"
	"homeschool-api/modules/notification/entity"
	"homeschool-api/modules/notification/repository"

	"github.com/google/uuid"
)

type NotificationService interface {
	NotifySyncFailed(ctx context.Context, userID, orgID uuid.UUID, calendarName, message string) error
	NotifyCriticalConflicts(ctx context.Context, userID, orgID uuid.UUID, calendarName string, events int) error

	GetMyNotifications(ctx context.Context, orgID, userID uuid.UUID, queryParams params.QueryParams) (*dto.NotificationListResponse, error)
	MarkAsRead(ctx context.Context, orgID, userID uuid.UUID, ids []uuid.UUID) error
	MarkAllAsRead(ctx context.Context, orgID, userID uuid.UUID) error
	CountUnread(ctx context.Context, orgID, userID uuid.UUID) (int, error)
}

type notificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

func (s *notificationService) NotifySyncFailed(ctx context.Context, userID, orgID uuid.UUID, calendarName, message string) error {
	return s.create(ctx, &entity.Notification{
		UserID:         userID,
		OrganizationID: &orgID,
		Title:          "Calendar sync failed",
		Message:        fmt.Sprintf("We could not sync %s: %s", displayName(calendarName), message),
		Type:           entity.TypeCalendarSyncFailed,
		Data:           entity.JSONB{"calendar_name": calendarName, "error": message},
	})
}

func (s *notificationService) NotifyCriticalConflicts(ctx context.Context, userID, orgID uuid.UUID, calendarName string, events int) error {
	noun, verb := "events", "conflict"
	if events == 1 {
		noun, verb = "event", "conflicts"
	}
	return s.create(ctx, &entity.Notification{
		UserID:         userID,
		OrganizationID: &orgID,
		Title:          "Lessons overlap with work",
		Message:        fmt.Sprintf("%d %s in %s %s with scheduled lessons.", events, noun, displayName(calendarName), verb),
		Type:           entity.TypeCalendarCriticalConflicts,
		Data:           entity.JSONB{"calendar_name": calendarName, "events": events},
	})
}

func (s *notificationService) create(ctx context.Context, notification *entity.Notification) error {
	if err := s.repo.Create(ctx, notification); err != nil {
		logger.Error("NotificationService:Create:Error", "user_id", notification.UserID, "type", notification.Type, "error", err)
		return errors.NewAppError(errors.ErrInternalServer, "failed to create notification", err)
	}
	return nil
}

func displayName(calendarName string) string {
	if calendarName == "" {
		return "your work calendar"
	}
	return calendarName
}

func (s *notificationService) GetMyNotifications(ctx context.Context, orgID, userID uuid.UUID, queryParams params.QueryParams) (*dto.NotificationListResponse, error) {
	page, err := s.repo.ListByUser(ctx, orgID, userID, queryParams)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to get notifications", err)
	}

	resp := &dto.NotificationListResponse{
		Items:      make([]dto.NotificationResponse, 0, len(page.Items)),
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages(),
		PageNumber: page.PageNumber,
		PageSize:   page.PageSize,
	}
	for _, n := range page.Items {
		resp.Items = append(resp.Items, dto.NotificationResponse{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Type:      n.Type,
			Data:      n.Data,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		})
	}
	return resp, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, orgID, userID uuid.UUID, ids []uuid.UUID) error {
	if err := s.repo.MarkAsRead(ctx, orgID, userID, ids); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to mark as read", err)
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, orgID, userID uuid.UUID) error {
	if err := s.repo.MarkAllAsRead(ctx, orgID, userID); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to mark all as read", err)
	}
	return nil
}

func (s *notificationService) CountUnread(ctx context.Context, orgID, userID uuid.UUID) (int, error) {
	count, err := s.repo.CountUnread(ctx, orgID, userID)
	if err != nil {
		return 0, errors.NewAppError(errors.ErrInternalServer, "failed to count unread", err)
	}
	return count, nil
}
