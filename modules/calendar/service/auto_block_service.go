package service

import (
	"context"

	"homeschool-api/core/errors"
	"homeschool-api/core/logger"
	"homeschool-api/core/metrics"
	"homeschool-api/modules/calendar/repository"
	lessonEntity "homeschool-api/modules/lesson/entity"
	lessonRepo "homeschool-api/modules/lesson/repository"

	"github.com/google/uuid"
)

type AutoBlockService interface {
	// AutoBlockWorkEvents reserves lesson time for eligible work events and
	// returns how many were blocked. An empty eventIDs selects every
	// eligible event of the organization.
	AutoBlockWorkEvents(ctx context.Context, orgID uuid.UUID, eventIDs []uuid.UUID) (int, error)
}

type autoBlockService struct {
	events  repository.EventRepository
	lessons lessonRepo.LessonRepository
}

func NewAutoBlockService(events repository.EventRepository, lessons lessonRepo.LessonRepository) AutoBlockService {
	return &autoBlockService{events: events, lessons: lessons}
}

func (s *autoBlockService) AutoBlockWorkEvents(ctx context.Context, orgID uuid.UUID, eventIDs []uuid.UUID) (int, error) {
	candidates, err := s.events.ListAutoBlockCandidates(ctx, orgID, eventIDs)
	if err != nil {
		return 0, errors.NewAppError(errors.ErrInternalServer, "failed to load auto-block candidates", err)
	}

	blocked := 0
	for _, event := range candidates {
		lesson := lessonEntity.NewWorkBlock(orgID, event.ID, event.Title, event.StartTime, event.EndTime)
		if err := s.lessons.Create(ctx, lesson); err != nil {
			logger.Error("AutoBlockService:AutoBlockWorkEvents:CreateLesson:Error", "event_id", event.ID, "error", err)
			continue
		}
		if err := s.events.MarkAutoBlocked(ctx, event.ID, lesson.ID); err != nil {
			logger.Error("AutoBlockService:AutoBlockWorkEvents:MarkAutoBlocked:Error", "event_id", event.ID, "lesson_id", lesson.ID, "error", err)
			// Leave no orphan placeholder behind.
			if cancelErr := s.lessons.CancelMany(ctx, []uuid.UUID{lesson.ID}); cancelErr != nil {
				logger.Error("AutoBlockService:AutoBlockWorkEvents:CancelOrphan:Error", "lesson_id", lesson.ID, "error", cancelErr)
			}
			continue
		}
		blocked++
	}

	if blocked > 0 {
		metrics.AutoBlocked.Add(float64(blocked))
		logger.Info("AutoBlockService:AutoBlockWorkEvents:Success", "organization_id", orgID, "blocked", blocked, "candidates", len(candidates))
	}
	return blocked, nil
}
