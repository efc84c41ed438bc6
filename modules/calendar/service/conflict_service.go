package service

import (
	"context"
	"sync"
	"time"

	"homeschool-api/core/errors"
	"homeschool-api/core/logger"
	"homeschool-api/core/metrics"
	"homeschool-api/modules/calendar/dto"
	"homeschool-api/modules/calendar/entity"
	"homeschool-api/modules/calendar/repository"
	lessonEntity "homeschool-api/modules/lesson/entity"
	lessonRepo "homeschool-api/modules/lesson/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConflictConcurrency = 10
	upcomingConflictWindow     = 7 * 24 * time.Hour
)

type ConflictService interface {
	DetectConflictsForEvent(ctx context.Context, orgID uuid.UUID, event entity.SyncedWorkEvent) (*dto.ConflictResult, error)
	// DetectConflictsForEvents runs detection with bounded concurrency. Events
	// whose lookup fails are logged and absent from the map.
	DetectConflictsForEvents(ctx context.Context, orgID uuid.UUID, events []entity.SyncedWorkEvent) map[uuid.UUID]*dto.ConflictResult
	// RefreshEventConflicts detects and persists the conflict state of events.
	RefreshEventConflicts(ctx context.Context, orgID uuid.UUID, events []entity.SyncedWorkEvent) (*dto.ConflictRefreshSummary, error)
	GetUnresolvedConflicts(ctx context.Context, orgID uuid.UUID, filter dto.ConflictFilter) ([]dto.EventConflicts, error)
	GetConflictStatistics(ctx context.Context, orgID uuid.UUID) (*entity.ConflictStatistics, error)
	ResolveConflict(ctx context.Context, orgID, userID uuid.UUID, req *dto.ResolveConflictRequest) (*entity.CalendarConflictResolution, error)
}

type ConflictServiceOptions struct {
	Concurrency int
	// UseSQLFunction routes the overlap lookup through detect_calendar_conflicts.
	UseSQLFunction bool
	Now            func() time.Time
}

type conflictService struct {
	lessons     lessonRepo.LessonRepository
	events      repository.EventRepository
	resolutions repository.ResolutionRepository
	concurrency int
	useFunction bool
	now         func() time.Time
}

func NewConflictService(
	lessons lessonRepo.LessonRepository,
	events repository.EventRepository,
	resolutions repository.ResolutionRepository,
	opts ConflictServiceOptions,
) ConflictService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConflictConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &conflictService{
		lessons:     lessons,
		events:      events,
		resolutions: resolutions,
		concurrency: opts.Concurrency,
		useFunction: opts.UseSQLFunction,
		now:         opts.Now,
	}
}

func (s *conflictService) DetectConflictsForEvent(ctx context.Context, orgID uuid.UUID, event entity.SyncedWorkEvent) (*dto.ConflictResult, error) {
	candidates, err := s.findCandidates(ctx, orgID, event.StartTime, event.EndTime)
	if err != nil {
		logger.Error("ConflictService:DetectConflictsForEvent:Error", "event_id", event.ID, "error", err)
		return nil, errors.NewAppError(errors.ErrConflictDetectionFailed, "failed to query overlapping lessons", err)
	}

	conflicts := buildConflicts(event, candidates)
	return &dto.ConflictResult{
		HasConflict: len(conflicts) > 0,
		Conflicts:   conflicts,
		Severity:    ComputeSeverity(conflicts),
	}, nil
}

func (s *conflictService) findCandidates(ctx context.Context, orgID uuid.UUID, start, end time.Time) ([]lessonCandidate, error) {
	if s.useFunction {
		rows, err := s.lessons.DetectConflicts(ctx, orgID, start, end)
		if err != nil {
			return nil, err
		}
		candidates := make([]lessonCandidate, 0, len(rows))
		for _, r := range rows {
			candidates = append(candidates, lessonCandidate{id: r.LessonID, title: r.LessonTitle, start: r.LessonStart, end: r.LessonEnd})
		}
		return candidates, nil
	}

	lessons, err := s.lessons.FindOverlapping(ctx, orgID, start, end)
	if err != nil {
		return nil, err
	}
	candidates := make([]lessonCandidate, 0, len(lessons))
	for _, l := range lessons {
		candidates = append(candidates, lessonCandidate{id: l.ID, title: l.Title, start: l.ScheduledStart, end: l.ScheduledEnd})
	}
	return candidates, nil
}

func (s *conflictService) DetectConflictsForEvents(ctx context.Context, orgID uuid.UUID, events []entity.SyncedWorkEvent) map[uuid.UUID]*dto.ConflictResult {
	results := make(map[uuid.UUID]*dto.ConflictResult, len(events))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, event := range events {
		g.Go(func() error {
			result, err := s.DetectConflictsForEvent(ctx, orgID, event)
			if err != nil {
				return nil
			}
			mu.Lock()
			results[event.ID] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *conflictService) RefreshEventConflicts(ctx context.Context, orgID uuid.UUID, events []entity.SyncedWorkEvent) (*dto.ConflictRefreshSummary, error) {
	summary := &dto.ConflictRefreshSummary{}
	if len(events) == 0 {
		return summary, nil
	}

	results := s.DetectConflictsForEvents(ctx, orgID, events)
	for _, event := range events {
		result, ok := results[event.ID]
		if !ok {
			summary.Failed++
			continue
		}

		lessonIDs := make([]string, 0, len(result.Conflicts))
		for _, c := range result.Conflicts {
			lessonIDs = append(lessonIDs, c.LessonID.String())
		}
		if err := s.events.UpdateConflictState(ctx, event.ID, result.Severity, lessonIDs); err != nil {
			logger.Error("ConflictService:RefreshEventConflicts:UpdateConflictState:Error",
				"event_id", event.ID, "code", errors.ErrConflictDetectionFailed, "error", err)
			summary.Failed++
			continue
		}

		summary.Conflicts += len(result.Conflicts)
		if result.Severity == entity.SeverityCritical {
			summary.CriticalEvents++
		}
	}

	metrics.ConflictsDetected.Add(float64(summary.Conflicts))
	return summary, nil
}

func (s *conflictService) GetUnresolvedConflicts(ctx context.Context, orgID uuid.UUID, filter dto.ConflictFilter) ([]dto.EventConflicts, error) {
	events, err := s.events.ListUnresolvedConflicts(ctx, orgID, filter)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list conflicts", err)
	}

	results := s.DetectConflictsForEvents(ctx, orgID, events)
	out := make([]dto.EventConflicts, 0, len(events))
	for _, event := range events {
		item := dto.EventConflicts{Event: event, Severity: entity.Severity(event.ConflictSeverity)}
		if result, ok := results[event.ID]; ok {
			// Lessons may have moved since the last sync.
			if !result.HasConflict {
				continue
			}
			item.Severity = result.Severity
			item.Conflicts = result.Conflicts
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *conflictService) GetConflictStatistics(ctx context.Context, orgID uuid.UUID) (*entity.ConflictStatistics, error) {
	now := s.now()
	stats, err := s.events.GetConflictStatistics(ctx, orgID, now, now.Add(upcomingConflictWindow))
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load conflict statistics", err)
	}
	return stats, nil
}

func (s *conflictService) ResolveConflict(ctx context.Context, orgID, userID uuid.UUID, req *dto.ResolveConflictRequest) (*entity.CalendarConflictResolution, error) {
	event, err := s.events.GetByID(ctx, orgID, req.WorkEventID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load work event", err)
	}
	if event == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "work event not found", nil)
	}

	if err := s.applyResolution(ctx, orgID, req); err != nil {
		return nil, err
	}

	resolution := &entity.CalendarConflictResolution{
		WorkEventID:    event.ID,
		OrganizationID: orgID,
		LessonID:       req.LessonID,
		ResolutionType: req.ResolutionType,
		NewLessonStart: req.NewLessonStart,
		NewLessonEnd:   req.NewLessonEnd,
		ResolvedBy:     userID,
		ResolvedAt:     s.now(),
	}
	if req.Notes != "" {
		resolution.Notes = &req.Notes
	}
	if err := s.resolutions.Create(ctx, resolution); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to store resolution", err)
	}

	logger.Info("ConflictService:ResolveConflict:Success",
		"work_event_id", event.ID, "resolution_type", req.ResolutionType, "resolved_by", userID)
	return resolution, nil
}

func (s *conflictService) applyResolution(ctx context.Context, orgID uuid.UUID, req *dto.ResolveConflictRequest) error {
	switch req.ResolutionType {
	case entity.ResolutionRescheduleWork, entity.ResolutionIgnoreConflict:
		return nil
	}

	if req.LessonID == nil {
		return errors.NewAppError(errors.ErrInvalidInput, "lesson_id is required for "+string(req.ResolutionType), nil)
	}
	lesson, err := s.lessons.GetByID(ctx, orgID, *req.LessonID)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to load lesson", err)
	}
	if lesson == nil {
		return errors.NewAppError(errors.ErrNotFound, "lesson not found", nil)
	}

	switch req.ResolutionType {
	case entity.ResolutionRescheduleLesson:
		if req.NewLessonStart == nil || req.NewLessonEnd == nil || !req.NewLessonEnd.After(*req.NewLessonStart) {
			return errors.NewAppError(errors.ErrInvalidInput, "new_lesson_start and new_lesson_end must form a valid range", nil)
		}
		err = s.lessons.Reschedule(ctx, orgID, lesson.ID, *req.NewLessonStart, *req.NewLessonEnd)
	case entity.ResolutionCancelLesson:
		err = s.lessons.UpdateStatus(ctx, orgID, lesson.ID, lessonEntity.StatusCancelled)
	case entity.ResolutionMarkFlexible:
		err = s.lessons.MarkFlexible(ctx, orgID, lesson.ID)
	default:
		return errors.NewAppError(errors.ErrInvalidInput, "unknown resolution type", nil)
	}
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to update lesson", err)
	}
	return nil
}
