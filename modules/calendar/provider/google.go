package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"homeschool-api/core/errors"
	"homeschool-api/core/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var googleScopes = []string{
	calendar.CalendarReadonlyScope,
	"https://www.googleapis.com/auth/userinfo.email",
}

type GoogleProvider struct {
	oauth   *oauthClient
	apiBase string
}

func NewGoogleProvider(opts Options) *GoogleProvider {
	endpoint := opts.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	return &GoogleProvider{
		oauth: &oauthClient{
			name: NameGoogle,
			config: &oauth2.Config{
				ClientID:     opts.ClientID,
				ClientSecret: opts.ClientSecret,
				RedirectURL:  opts.RedirectURI,
				Scopes:       googleScopes,
				Endpoint:     endpoint,
			},
			client: opts.httpClient(),
			now:    opts.clock(),
		},
		apiBase: opts.APIBaseURL,
	}
}

func (p *GoogleProvider) Name() string {
	return NameGoogle
}

// GenerateAuthURL requests offline access with a forced consent prompt so a
// refresh token is always issued.
func (p *GoogleProvider) GenerateAuthURL(userID string) (*AuthURLResult, error) {
	state, err := NewState(userID, p.oauth.now())
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "google: failed to create state", err)
	}
	url := p.oauth.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	return &AuthURLResult{URL: url, State: state}, nil
}

func (p *GoogleProvider) ExchangeCodeForTokens(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	return p.oauth.exchange(ctx, code, codeVerifier)
}

func (p *GoogleProvider) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return p.oauth.refresh(ctx, refreshToken)
}

func (p *GoogleProvider) ListCalendars(ctx context.Context, accessToken, pageToken string) (*CalendarList, error) {
	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	call := svc.CalendarList.List().Context(ctx).MaxResults(250)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		logger.Error("GoogleProvider:ListCalendars:Error", "error", err)
		return nil, googleError("list calendars", err)
	}

	list := &CalendarList{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		name := item.SummaryOverride
		if name == "" {
			name = item.Summary
		}
		cal := Calendar{
			ID:        item.Id,
			Name:      name,
			IsPrimary: item.Primary,
			CanWrite:  item.AccessRole == "owner" || item.AccessRole == "writer",
			Color:     item.BackgroundColor,
		}
		if item.Primary {
			cal.Owner = item.Id
		}
		list.Calendars = append(list.Calendars, cal)
	}
	return list, nil
}

func (p *GoogleProvider) FetchEvents(ctx context.Context, accessToken, calendarID string, opts FetchEventsOptions) (*FetchEventsResult, error) {
	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	call := svc.Events.List(calendarID).Context(ctx).SingleEvents(true)
	if opts.Incremental() {
		call = call.SyncToken(opts.SyncToken)
	} else {
		call = call.OrderBy("startTime").
			TimeMin(opts.TimeMin.UTC().Format(time.RFC3339)).
			TimeMax(opts.TimeMax.UTC().Format(time.RFC3339))
	}
	if opts.MaxResults > 0 {
		call = call.MaxResults(int64(opts.MaxResults))
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}

	resp, err := call.Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusGone {
			return nil, errors.NewAppError(errors.ErrSyncTokenExpired, "google: sync token expired", err)
		}
		logger.Error("GoogleProvider:FetchEvents:Error", "calendar_id", calendarID, "error", err)
		return nil, googleError("fetch events", err)
	}

	result := &FetchEventsResult{
		NextPageToken: resp.NextPageToken,
		NextSyncToken: resp.NextSyncToken,
	}
	for _, item := range resp.Items {
		if item.Status == "cancelled" {
			result.DeletedEventIDs = append(result.DeletedEventIDs, item.Id)
			continue
		}
		event, err := convertGoogleEvent(calendarID, item)
		if err != nil {
			logger.Warn("GoogleProvider:FetchEvents:SkipEvent", "event_id", item.Id, "error", err)
			continue
		}
		result.Events = append(result.Events, event)
	}
	return result, nil
}

func (p *GoogleProvider) service(ctx context.Context, accessToken string) (*calendar.Service, error) {
	client := oauth2.NewClient(p.oauth.withHTTPClient(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.apiBase != "" {
		opts = append(opts, option.WithEndpoint(p.apiBase))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "google: failed to create calendar client", err)
	}
	return svc, nil
}

func googleError(op string, err error) error {
	msg := err.Error()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = fmt.Sprintf("%d %s", apiErr.Code, apiErr.Message)
	}
	return errors.NewAppError(errors.ErrProviderFetchFailed, fmt.Sprintf("google: %s: %s", op, msg), err)
}

func convertGoogleEvent(calendarID string, item *calendar.Event) (ExternalEvent, error) {
	start, allDay, err := parseGoogleTime(item.Start)
	if err != nil {
		return ExternalEvent{}, fmt.Errorf("start: %w", err)
	}
	end, _, err := parseGoogleTime(item.End)
	if err != nil {
		return ExternalEvent{}, fmt.Errorf("end: %w", err)
	}

	title := strings.TrimSpace(item.Summary)
	if title == "" {
		title = untitledEvent
	}

	attendees := make([]Attendee, 0, len(item.Attendees))
	for _, a := range item.Attendees {
		attendees = append(attendees, Attendee{
			Email:          a.Email,
			Name:           a.DisplayName,
			ResponseStatus: a.ResponseStatus,
		})
	}
	hasConference := item.HangoutLink != "" ||
		(item.ConferenceData != nil && len(item.ConferenceData.EntryPoints) > 0)

	return ExternalEvent{
		ID:               item.Id,
		CalendarID:       calendarID,
		Title:            title,
		Description:      item.Description,
		Location:         item.Location,
		StartTime:        start,
		EndTime:          end,
		IsAllDay:         allDay,
		Status:           item.Status,
		IsMeeting:        len(attendees) > 0 || hasConference,
		Attendees:        attendees,
		IsRecurring:      item.RecurringEventId != "" || len(item.Recurrence) > 0,
		RecurringEventID: item.RecurringEventId,
		Recurrence:       item.Recurrence,
	}, nil
}

func parseGoogleTime(t *calendar.EventDateTime) (time.Time, bool, error) {
	if t == nil {
		return time.Time{}, false, fmt.Errorf("missing time")
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		return parsed.UTC(), false, err
	}
	loc := time.UTC
	if t.TimeZone != "" {
		if l, err := time.LoadLocation(t.TimeZone); err == nil {
			loc = l
		}
	}
	parsed, err := time.ParseInLocation("2006-01-02", t.Date, loc)
	return parsed.UTC(), true, err
}
