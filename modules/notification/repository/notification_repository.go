package repository

import (
	"context"

	"homeschool-api/core/database"
	"homeschool-api/core/logger"
	"homeschool-api/core/params"
	"homeschool-api/modules/notification/entity"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) error
	ListByUser(ctx context.Context, orgID, userID uuid.UUID, params params.QueryParams) (*entity.PaginatedNotificationEntity, error)
	MarkAsRead(ctx context.Context, orgID, userID uuid.UUID, ids []uuid.UUID) error
	MarkAllAsRead(ctx context.Context, orgID, userID uuid.UUID) error
	CountUnread(ctx context.Context, orgID, userID uuid.UUID) (int, error)
}

type notificationRepository struct {
	db database.IDatabase
}

func NewNotificationRepository(db database.IDatabase) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *entity.Notification) error {
	query := `
		INSERT INTO notifications (user_id, organization_id, title, message, type, data, is_read)
		VALUES (:user_id, :organization_id, :title, :message, :type, :data, :is_read)
		RETURNING id, created_at, updated_at
	`
	rows, err := r.db.NamedQueryContext(ctx, query, notification)
	if err != nil {
		logger.Error("NotificationRepository:Create:Error", "user_id", notification.UserID, "error", err)
		return err
	}
	defer rows.Close()

	if rows.Next() {
		return rows.Scan(&notification.ID, &notification.CreatedAt, &notification.UpdatedAt)
	}
	return rows.Err()
}

func (r *notificationRepository) ListByUser(ctx context.Context, orgID, userID uuid.UUID, params params.QueryParams) (*entity.PaginatedNotificationEntity, error) {
	baseQuery := `FROM notifications WHERE user_id = $1 AND organization_id = $2`

	var totalItems int
	if err := r.db.GetContext(ctx, &totalItems, "SELECT COUNT(*) "+baseQuery, userID, orgID); err != nil {
		logger.Error("NotificationRepository:ListByUser:Count:Error", "user_id", userID, "error", err)
		return nil, err
	}

	query := `
		SELECT id, user_id, organization_id, title, message, type, data, is_read, created_at, updated_at
		` + baseQuery + `
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	notifications := []entity.Notification{}
	if err := r.db.SelectContext(ctx, &notifications, query, userID, orgID, params.PageSize, params.Offset()); err != nil {
		logger.Error("NotificationRepository:ListByUser:Select:Error", "user_id", userID, "error", err)
		return nil, err
	}

	return &entity.PaginatedNotificationEntity{
		Items:      notifications,
		TotalItems: totalItems,
		PageNumber: params.PageNumber,
		PageSize:   params.PageSize,
	}, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, orgID, userID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		UPDATE notifications SET is_read = true, updated_at = NOW()
		WHERE user_id = ? AND organization_id = ? AND id IN (?)`, userID, orgID, ids)
	if err != nil {
		return err
	}

	query = r.db.SQLx().Rebind(query)
	if err := r.db.ExecContext(ctx, query, args...); err != nil {
		logger.Error("NotificationRepository:MarkAsRead:Error", "user_id", userID, "error", err)
		return err
	}
	return nil
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, orgID, userID uuid.UUID) error {
	query := `
		UPDATE notifications SET is_read = true, updated_at = NOW()
		WHERE user_id = $1 AND organization_id = $2 AND is_read = false`
	if err := r.db.ExecContext(ctx, query, userID, orgID); err != nil {
		logger.Error("NotificationRepository:MarkAllAsRead:Error", "user_id", userID, "error", err)
		return err
	}
	return nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, orgID, userID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND organization_id = $2 AND is_read = false`
	if err := r.db.GetContext(ctx, &count, query, userID, orgID); err != nil {
		logger.Error("NotificationRepository:CountUnread:Error", "user_id", userID, "error", err)
		return 0, err
	}
	return count, nil
}
