package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"homeschool-api/core/errors"
	"homeschool-api/modules/calendar/dto"
	"homeschool-api/modules/calendar/entity"
	"homeschool-api/modules/calendar/provider"
	lessonEntity "homeschool-api/modules/lesson/entity"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type fakeConnectionRepo struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*entity.CalendarConnection

	tokenUpdates int
}

func newFakeConnectionRepo(conns ...*entity.CalendarConnection) *fakeConnectionRepo {
	r := &fakeConnectionRepo{conns: make(map[uuid.UUID]*entity.CalendarConnection)}
	for _, c := range conns {
		cp := *c
		r.conns[c.ID] = &cp
	}
	return r
}

func (r *fakeConnectionRepo) get(id uuid.UUID) *entity.CalendarConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func (r *fakeConnectionRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.CalendarConnection, error) {
	return r.get(id), nil
}

func (r *fakeConnectionRepo) ListByOrganization(_ context.Context, orgID uuid.UUID) ([]entity.CalendarConnection, error) {
	return r.filter(func(c *entity.CalendarConnection) bool { return c.OrganizationID == orgID }), nil
}

func (r *fakeConnectionRepo) ListEnabledByOrganization(_ context.Context, orgID uuid.UUID) ([]entity.CalendarConnection, error) {
	return r.filter(func(c *entity.CalendarConnection) bool { return c.OrganizationID == orgID && c.SyncEnabled }), nil
}

func (r *fakeConnectionRepo) filter(keep func(*entity.CalendarConnection) bool) []entity.CalendarConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.CalendarConnection
	for _, c := range r.conns {
		if keep(c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CalendarID < out[j].CalendarID })
	return out
}

func (r *fakeConnectionRepo) ListOrganizationsWithEnabledConnections(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, c := range r.conns {
		if c.SyncEnabled && !seen[c.OrganizationID] {
			seen[c.OrganizationID] = true
			out = append(out, c.OrganizationID)
		}
	}
	return out, nil
}

func (r *fakeConnectionRepo) Upsert(_ context.Context, conn *entity.CalendarConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.OrganizationID == conn.OrganizationID && c.Provider == conn.Provider && c.CalendarID == conn.CalendarID {
			conn.ID = c.ID
			conn.SyncToken = c.SyncToken
			if conn.RefreshToken == "" {
				conn.RefreshToken = c.RefreshToken
			}
			break
		}
	}
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	conn.SyncEnabled = true
	cp := *conn
	r.conns[conn.ID] = &cp
	return nil
}

func (r *fakeConnectionRepo) update(id uuid.UUID, fn func(*entity.CalendarConnection)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return errors.NewAppError(errors.ErrNotFound, "missing", nil)
	}
	fn(c)
	return nil
}

func (r *fakeConnectionRepo) UpdateTokens(_ context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) error {
	return r.update(id, func(c *entity.CalendarConnection) {
		r.tokenUpdates++
		c.AccessToken, c.RefreshToken, c.TokenExpiresAt = accessToken, refreshToken, expiresAt
	})
}

func (r *fakeConnectionRepo) UpdateSyncToken(_ context.Context, id uuid.UUID, syncToken *string) error {
	return r.update(id, func(c *entity.CalendarConnection) { c.SyncToken = syncToken })
}

func (r *fakeConnectionRepo) UpdateSyncStatus(_ context.Context, id uuid.UUID, status string, syncErr *string, at time.Time) error {
	return r.update(id, func(c *entity.CalendarConnection) {
		c.LastSyncStatus, c.LastSyncError, c.LastSyncAt = &status, syncErr, &at
	})
}

func (r *fakeConnectionRepo) UpdateSettings(_ context.Context, conn *entity.CalendarConnection) error {
	return r.update(conn.ID, func(c *entity.CalendarConnection) {
		c.CalendarID, c.CalendarName = conn.CalendarID, conn.CalendarName
		c.SyncEnabled, c.AutoBlockEnabled, c.SyncToken = conn.SyncEnabled, conn.AutoBlockEnabled, conn.SyncToken
	})
}

func (r *fakeConnectionRepo) Disable(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(c *entity.CalendarConnection) { c.SyncEnabled = false })
}

type fakeEventRepo struct {
	mu          sync.Mutex
	rows        map[uuid.UUID]*entity.SyncedWorkEvent
	connections *fakeConnectionRepo
	resolved    map[uuid.UUID]bool

	upserts   int
	upsertErr error
}

func newFakeEventRepo(connections *fakeConnectionRepo) *fakeEventRepo {
	return &fakeEventRepo{
		rows:        make(map[uuid.UUID]*entity.SyncedWorkEvent),
		connections: connections,
		resolved:    make(map[uuid.UUID]bool),
	}
}

func (r *fakeEventRepo) byExternalID(connectionID uuid.UUID, externalID string) *entity.SyncedWorkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ConnectionID == connectionID && row.ExternalEventID == externalID {
			cp := *row
			return &cp
		}
	}
	return nil
}

func (r *fakeEventRepo) count(connectionID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.ConnectionID == connectionID {
			n++
		}
	}
	return n
}

func (r *fakeEventRepo) put(row entity.SyncedWorkEvent) *entity.SyncedWorkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.ConflictSeverity == "" {
		row.ConflictSeverity = string(entity.SeverityNone)
	}
	r.rows[row.ID] = &row
	return &row
}

func (r *fakeEventRepo) ListByConnection(_ context.Context, connectionID uuid.UUID) ([]entity.SyncedWorkEvent, error) {
	return r.filter(func(e *entity.SyncedWorkEvent) bool { return e.ConnectionID == connectionID }), nil
}

func (r *fakeEventRepo) filter(keep func(*entity.SyncedWorkEvent) bool) []entity.SyncedWorkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.SyncedWorkEvent
	for _, row := range r.rows {
		if keep(row) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (r *fakeEventRepo) Upsert(_ context.Context, event *entity.SyncedWorkEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return false, r.upsertErr
	}
	r.upserts++
	for _, row := range r.rows {
		if row.ConnectionID == event.ConnectionID && row.ExternalEventID == event.ExternalEventID {
			row.Title, row.Description, row.Location = event.Title, event.Description, event.Location
			row.StartTime, row.EndTime, row.IsAllDay = event.StartTime, event.EndTime, event.IsAllDay
			row.IsMeeting, row.AttendeeCount, row.ExternalStatus = event.IsMeeting, event.AttendeeCount, event.ExternalStatus
			row.IsRecurring, row.RecurringEventID, row.RecurrenceRule = event.IsRecurring, event.RecurringEventID, event.RecurrenceRule
			row.IsDeleted = false
			row.LastSyncedAt = event.LastSyncedAt
			event.ID = row.ID
			return false, nil
		}
	}
	event.ID = uuid.New()
	cp := *event
	r.rows[event.ID] = &cp
	return true, nil
}

func (r *fakeEventRepo) TouchSynced(_ context.Context, ids []uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.rows[id].LastSyncedAt = at
	}
	return nil
}

func (r *fakeEventRepo) MarkDeleted(_ context.Context, ids []uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.rows[id].IsDeleted = true
		r.rows[id].AutoBlocked = false
		r.rows[id].AutoBlockLessonID = nil
		r.rows[id].LastSyncedAt = at
	}
	return nil
}

func (r *fakeEventRepo) GetByID(_ context.Context, orgID, id uuid.UUID) (*entity.SyncedWorkEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.OrganizationID != orgID {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *fakeEventRepo) GetByIDs(_ context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]entity.SyncedWorkEvent, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return r.filter(func(e *entity.SyncedWorkEvent) bool { return e.OrganizationID == orgID && want[e.ID] }), nil
}

func (r *fakeEventRepo) ListAutoBlockCandidates(_ context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]entity.SyncedWorkEvent, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	rows := r.filter(func(e *entity.SyncedWorkEvent) bool {
		return e.OrganizationID == orgID && !e.AutoBlocked && !e.IsDeleted && (len(ids) == 0 || want[e.ID])
	})
	var out []entity.SyncedWorkEvent
	for _, row := range rows {
		if conn := r.connections.get(row.ConnectionID); conn != nil && conn.AutoBlockEnabled {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) UpdateConflictState(_ context.Context, id uuid.UUID, severity entity.Severity, lessonIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[id]
	row.HasConflict = len(lessonIDs) > 0
	row.ConflictSeverity = string(severity)
	row.ConflictingLessonIDs = pq.StringArray(lessonIDs)
	return nil
}

func (r *fakeEventRepo) MarkAutoBlocked(_ context.Context, id, lessonID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[id]
	row.AutoBlocked = true
	row.AutoBlockLessonID = &lessonID
	return nil
}

func (r *fakeEventRepo) ListUnresolvedConflicts(_ context.Context, orgID uuid.UUID, filter dto.ConflictFilter) ([]entity.SyncedWorkEvent, error) {
	return r.filter(func(e *entity.SyncedWorkEvent) bool {
		if e.OrganizationID != orgID || !e.HasConflict || e.IsDeleted || r.resolved[e.ID] {
			return false
		}
		if filter.StartDate != nil && !e.EndTime.After(*filter.StartDate) {
			return false
		}
		if filter.EndDate != nil && !e.StartTime.Before(*filter.EndDate) {
			return false
		}
		return filter.Severity == "" || e.ConflictSeverity == string(filter.Severity)
	}), nil
}

func (r *fakeEventRepo) GetConflictStatistics(_ context.Context, orgID uuid.UUID, from, to time.Time) (*entity.ConflictStatistics, error) {
	stats := &entity.ConflictStatistics{}
	for _, e := range r.filter(func(e *entity.SyncedWorkEvent) bool {
		return e.OrganizationID == orgID && e.HasConflict && !e.IsDeleted
	}) {
		stats.Total++
		switch entity.Severity(e.ConflictSeverity) {
		case entity.SeverityCritical:
			stats.Critical++
		case entity.SeverityWarning:
			stats.Warning++
		}
		if r.resolved[e.ID] {
			stats.Resolved++
			continue
		}
		stats.Unresolved++
		if !e.StartTime.Before(from) && e.StartTime.Before(to) {
			stats.Upcoming++
		}
	}
	return stats, nil
}

type fakeSyncLogRepo struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*entity.CalendarSyncLog
}

func newFakeSyncLogRepo() *fakeSyncLogRepo {
	return &fakeSyncLogRepo{logs: make(map[uuid.UUID]*entity.CalendarSyncLog)}
}

func (r *fakeSyncLogRepo) Create(_ context.Context, log *entity.CalendarSyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.ID = uuid.New()
	cp := *log
	r.logs[log.ID] = &cp
	return nil
}

func (r *fakeSyncLogRepo) Finish(_ context.Context, log *entity.CalendarSyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.logs[log.ID]; ok && existing.SyncStatus == entity.SyncStatusStarted {
		cp := *log
		r.logs[log.ID] = &cp
	}
	return nil
}

func (r *fakeSyncLogRepo) get(id uuid.UUID) entity.CalendarSyncLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.logs[id]
}

func (r *fakeSyncLogRepo) ListByConnection(_ context.Context, connectionID uuid.UUID, limit int) ([]entity.CalendarSyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.CalendarSyncLog
	for _, l := range r.logs {
		if l.ConnectionID == connectionID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeSyncLogRepo) FailStale(_ context.Context, startedBefore time.Time, message string, at time.Time) ([]entity.CalendarSyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.CalendarSyncLog
	for _, l := range r.logs {
		if l.SyncStatus == entity.SyncStatusStarted && l.StartedAt.Before(startedBefore) {
			l.SyncStatus = entity.SyncStatusFailed
			l.ErrorMessage = &message
			l.CompletedAt = &at
			out = append(out, *l)
		}
	}
	return out, nil
}

type fakeLessonRepo struct {
	mu      sync.Mutex
	lessons map[uuid.UUID]*lessonEntity.Lesson
	err     error
}

func newFakeLessonRepo(lessons ...lessonEntity.Lesson) *fakeLessonRepo {
	r := &fakeLessonRepo{lessons: make(map[uuid.UUID]*lessonEntity.Lesson)}
	for i := range lessons {
		l := lessons[i]
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		r.lessons[l.ID] = &l
	}
	return r
}

func (r *fakeLessonRepo) get(id uuid.UUID) *lessonEntity.Lesson {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lessons[id]
	if !ok {
		return nil
	}
	cp := *l
	return &cp
}

func (r *fakeLessonRepo) all() []lessonEntity.Lesson {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []lessonEntity.Lesson
	for _, l := range r.lessons {
		out = append(out, *l)
	}
	return out
}

func (r *fakeLessonRepo) FindOverlapping(_ context.Context, orgID uuid.UUID, start, end time.Time) ([]lessonEntity.Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []lessonEntity.Lesson
	for _, l := range r.lessons {
		if l.OrganizationID == orgID && l.ScheduledStart.Before(end) && l.ScheduledEnd.After(start) &&
			!l.IsWorkBlock && l.Status != lessonEntity.StatusCancelled {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledStart.Before(out[j].ScheduledStart) })
	return out, nil
}

func (r *fakeLessonRepo) DetectConflicts(ctx context.Context, orgID uuid.UUID, start, end time.Time) ([]lessonEntity.LessonOverlap, error) {
	lessons, err := r.FindOverlapping(ctx, orgID, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]lessonEntity.LessonOverlap, 0, len(lessons))
	for _, l := range lessons {
		out = append(out, lessonEntity.LessonOverlap{
			LessonID:     l.ID,
			LessonTitle:  l.Title,
			LessonStart:  l.ScheduledStart,
			LessonEnd:    l.ScheduledEnd,
			ConflictType: "partial_overlap",
		})
	}
	return out, nil
}

func (r *fakeLessonRepo) GetByID(_ context.Context, orgID, id uuid.UUID) (*lessonEntity.Lesson, error) {
	l := r.get(id)
	if l == nil || l.OrganizationID != orgID {
		return nil, nil
	}
	return l, nil
}

func (r *fakeLessonRepo) Create(_ context.Context, lesson *lessonEntity.Lesson) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lesson.ID = uuid.New()
	cp := *lesson
	r.lessons[lesson.ID] = &cp
	return nil
}

func (r *fakeLessonRepo) Reschedule(_ context.Context, _ uuid.UUID, id uuid.UUID, start, end time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lessons[id].ScheduledStart, r.lessons[id].ScheduledEnd = start, end
	return nil
}

func (r *fakeLessonRepo) UpdateStatus(_ context.Context, _ uuid.UUID, id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lessons[id].Status = status
	return nil
}

func (r *fakeLessonRepo) MarkFlexible(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lessons[id].IsFlexible = true
	return nil
}

func (r *fakeLessonRepo) CancelMany(_ context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if l, ok := r.lessons[id]; ok {
			l.Status = lessonEntity.StatusCancelled
		}
	}
	return nil
}

type fakeResolutionRepo struct {
	mu          sync.Mutex
	resolutions []entity.CalendarConflictResolution
	events      *fakeEventRepo
}

func (r *fakeResolutionRepo) Create(_ context.Context, resolution *entity.CalendarConflictResolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	resolution.ID = uuid.New()
	r.resolutions = append(r.resolutions, *resolution)
	if r.events != nil {
		r.events.mu.Lock()
		r.events.resolved[resolution.WorkEventID] = true
		r.events.mu.Unlock()
	}
	return nil
}

func (r *fakeResolutionRepo) ListByEvent(_ context.Context, orgID, workEventID uuid.UUID) ([]entity.CalendarConflictResolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.CalendarConflictResolution
	for _, res := range r.resolutions {
		if res.OrganizationID == orgID && res.WorkEventID == workEventID {
			out = append(out, res)
		}
	}
	return out, nil
}

// fakeProvider serves scripted pages. Full and incremental fetches use
// separate scripts so a test can assert which mode ran.
type fakeProvider struct {
	mu sync.Mutex

	name             string
	fullPages        []*provider.FetchEventsResult
	incrementalPages []*provider.FetchEventsResult
	incrementalErr   error
	refreshResult    *provider.TokenResponse
	refreshErr       error
	exchangeResult   *provider.TokenResponse
	calendars        []provider.Calendar
	now              func() time.Time

	fetchCalls     []provider.FetchEventsOptions
	refreshCalls   int
	lastVerifier   string
	lastAccessUsed string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) GenerateAuthURL(userID string) (*provider.AuthURLResult, error) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	state, err := provider.NewState(userID, now())
	if err != nil {
		return nil, err
	}
	return &provider.AuthURLResult{URL: "https://auth.example.com/authorize?state=" + state, State: state, CodeVerifier: "verifier-123"}, nil
}

func (p *fakeProvider) ExchangeCodeForTokens(_ context.Context, code, codeVerifier string) (*provider.TokenResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastVerifier = codeVerifier
	if code == "bad" {
		return nil, errors.NewAppError(errors.ErrOAuthExchangeFailed, "invalid_grant", nil)
	}
	return p.exchangeResult, nil
}

func (p *fakeProvider) RefreshAccessToken(_ context.Context, refreshToken string) (*provider.TokenResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshCalls++
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return p.refreshResult, nil
}

func (p *fakeProvider) ListCalendars(_ context.Context, accessToken, pageToken string) (*provider.CalendarList, error) {
	return &provider.CalendarList{Calendars: p.calendars}, nil
}

func (p *fakeProvider) FetchEvents(_ context.Context, accessToken, calendarID string, opts provider.FetchEventsOptions) (*provider.FetchEventsResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchCalls = append(p.fetchCalls, opts)
	p.lastAccessUsed = accessToken

	pages := p.fullPages
	if opts.Incremental() {
		if p.incrementalErr != nil {
			return nil, p.incrementalErr
		}
		pages = p.incrementalPages
	}
	idx := 0
	if opts.PageToken != "" {
		for i := range pages {
			if pages[i].NextPageToken == opts.PageToken {
				idx = i + 1
			}
		}
	}
	if idx >= len(pages) {
		return &provider.FetchEventsResult{}, nil
	}
	return pages[idx], nil
}

type fakeRegistry map[string]provider.Provider

func (r fakeRegistry) Get(name string) (provider.Provider, error) {
	p, ok := r[name]
	if !ok {
		return nil, errors.NewAppError(errors.ErrUnsupportedProvider, "unsupported calendar provider: "+name, nil)
	}
	return p, nil
}

type notification struct {
	kind   string
	userID uuid.UUID
	count  int
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) NotifySyncFailed(_ context.Context, userID, _ uuid.UUID, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{kind: "sync_failed", userID: userID})
	return nil
}

func (n *fakeNotifier) NotifyCriticalConflicts(_ context.Context, userID, _ uuid.UUID, _ string, events int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{kind: "critical_conflicts", userID: userID, count: events})
	return nil
}
