package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"homeschool-api/core/errors"
	"homeschool-api/modules/calendar/dto"
	"homeschool-api/modules/calendar/entity"
	lessonEntity "homeschool-api/modules/lesson/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conflictFixture struct {
	orgID       uuid.UUID
	lessons     *fakeLessonRepo
	events      *fakeEventRepo
	resolutions *fakeResolutionRepo
	svc         ConflictService
}

func newConflictFixture(useFunction bool, lessons ...lessonEntity.Lesson) *conflictFixture {
	orgID := uuid.New()
	for i := range lessons {
		lessons[i].OrganizationID = orgID
	}
	f := &conflictFixture{orgID: orgID, lessons: newFakeLessonRepo(lessons...)}
	f.events = newFakeEventRepo(newFakeConnectionRepo())
	f.resolutions = &fakeResolutionRepo{events: f.events}
	f.svc = NewConflictService(f.lessons, f.events, f.resolutions, ConflictServiceOptions{
		UseSQLFunction: useFunction,
		Now:            func() time.Time { return syncNow },
	})
	return f
}

func workEvent(orgID uuid.UUID, start, end time.Time, isMeeting bool) entity.SyncedWorkEvent {
	ev := entity.SyncedWorkEvent{OrganizationID: orgID, ExternalEventID: uuid.NewString(), StartTime: start, EndTime: end, IsMeeting: isMeeting}
	ev.ID = uuid.New()
	return ev
}

// slowLessonRepo records how many overlap queries run at once.
type slowLessonRepo struct {
	*fakeLessonRepo
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (r *slowLessonRepo) FindOverlapping(ctx context.Context, orgID uuid.UUID, start, end time.Time) ([]lessonEntity.Lesson, error) {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(r.delay)
	return r.fakeLessonRepo.FindOverlapping(ctx, orgID, start, end)
}

func TestDetectConflictsForEvents_CapsConcurrentQueries(t *testing.T) {
	orgID := uuid.New()
	math := lesson("Math", at(9, 0), at(10, 0))
	math.OrganizationID = orgID
	lessons := &slowLessonRepo{fakeLessonRepo: newFakeLessonRepo(math), delay: 20 * time.Millisecond}
	events := newFakeEventRepo(newFakeConnectionRepo())
	svc := NewConflictService(lessons, events, &fakeResolutionRepo{events: events}, ConflictServiceOptions{
		Now: func() time.Time { return syncNow },
	})

	batch := make([]entity.SyncedWorkEvent, 50)
	for i := range batch {
		batch[i] = workEvent(orgID, at(9, 0), at(10, 0), false)
	}

	results := svc.DetectConflictsForEvents(context.Background(), orgID, batch)

	assert.Len(t, results, 50)
	assert.LessOrEqual(t, lessons.peak.Load(), int32(10))
	assert.Greater(t, lessons.peak.Load(), int32(1), "queries run concurrently")
}

func TestDetectConflictsForEvent(t *testing.T) {
	for _, useFunction := range []bool{false, true} {
		f := newConflictFixture(useFunction,
			lesson("Math", at(9, 0), at(10, 0)),
			lesson("Art", at(10, 0), at(11, 0)),
			lesson("Cancelled", at(9, 0), at(10, 0)),
			lessonEntity.Lesson{Title: "Work Block: x", Status: lessonEntity.StatusBlocked, ScheduledStart: at(9, 0), ScheduledEnd: at(10, 0), IsWorkBlock: true},
		)
		for _, l := range f.lessons.all() {
			if l.Title == "Cancelled" {
				require.NoError(t, f.lessons.UpdateStatus(context.Background(), f.orgID, l.ID, lessonEntity.StatusCancelled))
			}
		}

		result, err := f.svc.DetectConflictsForEvent(context.Background(), f.orgID, workEvent(f.orgID, at(9, 30), at(10, 30), true))
		require.NoError(t, err)

		assert.True(t, result.HasConflict)
		require.Len(t, result.Conflicts, 2, "work blocks and cancelled lessons are not candidates")
		for _, c := range result.Conflicts {
			assert.Equal(t, entity.ConflictPartialOverlap, c.ConflictType, "classification is computed locally")
			assert.Equal(t, 30, c.OverlapMinutes)
			assert.Equal(t, []entity.ResolutionType{entity.ResolutionRescheduleLesson, entity.ResolutionMarkFlexible}, c.SuggestedResolutions)
		}
		assert.Equal(t, entity.SeverityWarning, result.Severity)
	}
}

func TestDetectConflictsForEvent_NoLessons(t *testing.T) {
	f := newConflictFixture(false)

	result, err := f.svc.DetectConflictsForEvent(context.Background(), f.orgID, workEvent(f.orgID, at(9, 0), at(10, 0), false))
	require.NoError(t, err)
	assert.False(t, result.HasConflict)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, entity.SeverityNone, result.Severity)
}

func TestDetectConflictsForEvent_QueryFailure(t *testing.T) {
	f := newConflictFixture(false)
	f.lessons.err = assert.AnError

	_, err := f.svc.DetectConflictsForEvent(context.Background(), f.orgID, workEvent(f.orgID, at(9, 0), at(10, 0), false))
	assert.True(t, errors.HasCode(err, errors.ErrConflictDetectionFailed))
}

func TestDetectConflictsForEvents_KeyedByEvent(t *testing.T) {
	f := newConflictFixture(false, lesson("Math", at(9, 0), at(10, 0)))
	var events []entity.SyncedWorkEvent
	for i := 0; i < 25; i++ {
		events = append(events, workEvent(f.orgID, at(9, 0), at(10, 0), false))
	}

	results := f.svc.DetectConflictsForEvents(context.Background(), f.orgID, events)

	require.Len(t, results, 25)
	for _, ev := range events {
		assert.Equal(t, entity.SeverityCritical, results[ev.ID].Severity)
	}
}

func TestRefreshEventConflicts_FailuresCountAsZero(t *testing.T) {
	f := newConflictFixture(false, lesson("Math", at(9, 0), at(10, 0)))
	ev := f.events.put(workEvent(f.orgID, at(9, 0), at(10, 0), false))
	f.lessons.err = assert.AnError

	summary, err := f.svc.RefreshEventConflicts(context.Background(), f.orgID, []entity.SyncedWorkEvent{*ev})

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Conflicts)
	assert.Equal(t, 1, summary.Failed)
}

func TestRefreshEventConflicts_ClearsStaleState(t *testing.T) {
	f := newConflictFixture(false)
	ev := workEvent(f.orgID, at(9, 0), at(10, 0), false)
	ev.HasConflict = true
	ev.ConflictSeverity = string(entity.SeverityCritical)
	ev.ConflictingLessonIDs = []string{uuid.NewString()}
	stored := f.events.put(ev)

	summary, err := f.svc.RefreshEventConflicts(context.Background(), f.orgID, []entity.SyncedWorkEvent{*stored})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Conflicts)

	got, _ := f.events.GetByID(context.Background(), f.orgID, stored.ID)
	assert.False(t, got.HasConflict)
	assert.Equal(t, string(entity.SeverityNone), got.ConflictSeverity)
	assert.Empty(t, got.ConflictingLessonIDs)
}

func TestGetUnresolvedConflicts_ExcludesResolved(t *testing.T) {
	f := newConflictFixture(false, lesson("Math", at(9, 0), at(10, 0)), lesson("Art", at(13, 0), at(14, 0)))
	first := f.events.put(workEvent(f.orgID, at(9, 0), at(10, 0), false))
	second := f.events.put(workEvent(f.orgID, at(13, 30), at(14, 30), false))
	_, err := f.svc.RefreshEventConflicts(context.Background(), f.orgID, []entity.SyncedWorkEvent{*first, *second})
	require.NoError(t, err)

	_, err = f.svc.ResolveConflict(context.Background(), f.orgID, uuid.New(), &dto.ResolveConflictRequest{
		WorkEventID:    first.ID,
		ResolutionType: entity.ResolutionIgnoreConflict,
	})
	require.NoError(t, err)

	items, err := f.svc.GetUnresolvedConflicts(context.Background(), f.orgID, dto.ConflictFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, second.ID, items[0].Event.ID)
	assert.Equal(t, entity.SeverityWarning, items[0].Severity)
	require.Len(t, items[0].Conflicts, 1)

	critical, err := f.svc.GetUnresolvedConflicts(context.Background(), f.orgID, dto.ConflictFilter{Severity: entity.SeverityCritical})
	require.NoError(t, err)
	assert.Empty(t, critical)
}

func TestGetConflictStatistics(t *testing.T) {
	f := newConflictFixture(false, lesson("Math", at(9, 0), at(10, 0)))
	ev := f.events.put(workEvent(f.orgID, at(9, 0), at(10, 0), false))
	_, err := f.svc.RefreshEventConflicts(context.Background(), f.orgID, []entity.SyncedWorkEvent{*ev})
	require.NoError(t, err)

	stats, err := f.svc.GetConflictStatistics(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Critical)
	assert.Equal(t, 1, stats.Unresolved)
	assert.Equal(t, 1, stats.Upcoming, "event falls within the next seven days")
}

func TestResolveConflict(t *testing.T) {
	newStart, newEnd := at(15, 0), at(16, 0)

	tests := []struct {
		name    string
		req     func(lessonID uuid.UUID) dto.ResolveConflictRequest
		check   func(t *testing.T, l *lessonEntity.Lesson)
		wantErr errors.ErrorCode
	}{
		{
			name: "reschedule lesson",
			req: func(id uuid.UUID) dto.ResolveConflictRequest {
				return dto.ResolveConflictRequest{LessonID: &id, ResolutionType: entity.ResolutionRescheduleLesson, NewLessonStart: &newStart, NewLessonEnd: &newEnd}
			},
			check: func(t *testing.T, l *lessonEntity.Lesson) {
				assert.Equal(t, newStart, l.ScheduledStart)
				assert.Equal(t, newEnd, l.ScheduledEnd)
			},
		},
		{
			name: "reschedule without times",
			req: func(id uuid.UUID) dto.ResolveConflictRequest {
				return dto.ResolveConflictRequest{LessonID: &id, ResolutionType: entity.ResolutionRescheduleLesson}
			},
			wantErr: errors.ErrInvalidInput,
		},
		{
			name: "cancel lesson",
			req: func(id uuid.UUID) dto.ResolveConflictRequest {
				return dto.ResolveConflictRequest{LessonID: &id, ResolutionType: entity.ResolutionCancelLesson}
			},
			check: func(t *testing.T, l *lessonEntity.Lesson) {
				assert.Equal(t, lessonEntity.StatusCancelled, l.Status)
			},
		},
		{
			name: "mark flexible",
			req: func(id uuid.UUID) dto.ResolveConflictRequest {
				return dto.ResolveConflictRequest{LessonID: &id, ResolutionType: entity.ResolutionMarkFlexible, Notes: "can move"}
			},
			check: func(t *testing.T, l *lessonEntity.Lesson) {
				assert.True(t, l.IsFlexible)
			},
		},
		{
			name: "lesson required",
			req: func(uuid.UUID) dto.ResolveConflictRequest {
				return dto.ResolveConflictRequest{ResolutionType: entity.ResolutionCancelLesson}
			},
			wantErr: errors.ErrInvalidInput,
		},
		{
			name: "unknown lesson",
			req: func(uuid.UUID) dto.ResolveConflictRequest {
				id := uuid.New()
				return dto.ResolveConflictRequest{LessonID: &id, ResolutionType: entity.ResolutionCancelLesson}
			},
			wantErr: errors.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newConflictFixture(false, lesson("Math", at(9, 0), at(10, 0)))
			lessonID := f.lessons.all()[0].ID
			ev := f.events.put(workEvent(f.orgID, at(9, 0), at(10, 0), false))
			userID := uuid.New()

			req := tt.req(lessonID)
			req.WorkEventID = ev.ID
			resolution, err := f.svc.ResolveConflict(context.Background(), f.orgID, userID, &req)

			if tt.wantErr != "" {
				assert.True(t, errors.HasCode(err, tt.wantErr), "got %v", err)
				assert.Empty(t, f.resolutions.resolutions)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, userID, resolution.ResolvedBy)
			assert.Equal(t, syncNow, resolution.ResolvedAt)
			require.Len(t, f.resolutions.resolutions, 1)
			tt.check(t, f.lessons.get(lessonID))
		})
	}
}

func TestResolveConflict_UnknownEvent(t *testing.T) {
	f := newConflictFixture(false)
	_, err := f.svc.ResolveConflict(context.Background(), f.orgID, uuid.New(), &dto.ResolveConflictRequest{
		WorkEventID:    uuid.New(),
		ResolutionType: entity.ResolutionIgnoreConflict,
	})
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

func TestAutoBlockWorkEvents_SkipsIneligible(t *testing.T) {
	connections := newFakeConnectionRepo()
	orgID := uuid.New()
	enabled := &entity.CalendarConnection{OrganizationID: orgID, CalendarID: "a", AutoBlockEnabled: true}
	enabled.ID = uuid.New()
	disabled := &entity.CalendarConnection{OrganizationID: orgID, CalendarID: "b"}
	disabled.ID = uuid.New()
	connections.conns[enabled.ID] = enabled
	connections.conns[disabled.ID] = disabled

	events := newFakeEventRepo(connections)
	lessons := newFakeLessonRepo()
	eligible := workEvent(orgID, at(9, 0), at(10, 0), false)
	eligible.ConnectionID = enabled.ID
	eligible.Title = "Standup"
	blocked := workEvent(orgID, at(11, 0), at(12, 0), false)
	blocked.ConnectionID = enabled.ID
	blocked.AutoBlocked = true
	deleted := workEvent(orgID, at(13, 0), at(14, 0), false)
	deleted.ConnectionID = enabled.ID
	deleted.IsDeleted = true
	optedOut := workEvent(orgID, at(15, 0), at(16, 0), false)
	optedOut.ConnectionID = disabled.ID
	for _, ev := range []entity.SyncedWorkEvent{eligible, blocked, deleted, optedOut} {
		events.put(ev)
	}

	svc := NewAutoBlockService(events, lessons)
	count, err := svc.AutoBlockWorkEvents(context.Background(), orgID, []uuid.UUID{eligible.ID, blocked.ID, deleted.ID, optedOut.ID})

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	all := lessons.all()
	require.Len(t, all, 1)
	assert.Equal(t, "Work Block: Standup", all[0].Title)
	assert.Equal(t, at(9, 0), all[0].ScheduledStart)
	assert.Equal(t, at(10, 0), all[0].ScheduledEnd)
}
