package notification

import (
	"homeschool-api/core/database"
	"homeschool-api/core/middleware"
	"homeschool-api/modules/notification/controller"
	"homeschool-api/modules/notification/repository"
	"homeschool-api/modules/notification/router"
	"homeschool-api/modules/notification/service"

	"github.com/labstack/echo/v4"
)

// NewService builds the notification service without HTTP routes, for the
// worker and one-shot sync processes.
func NewService(db database.IDatabase) service.NotificationService {
	return service.NewNotificationService(repository.NewNotificationRepository(db))
}

func Init(e *echo.Group, db database.IDatabase, mw *middleware.Middleware) service.NotificationService {
	svc := NewService(db)
	ctrl := controller.NewNotificationController(svc)

	router.NewNotificationRouter(ctrl).Register(e, mw)

	return svc
}
