package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"homeschool-api/core/errors"
	"homeschool-api/core/logger"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

var outlookScopes = []string{"offline_access", "Calendars.Read", "User.Read"}

// Graph reports an unusable delta link with 410 or one of these codes.
var graphExpiredCursorCodes = map[string]bool{
	"syncStateNotFound": true,
	"SyncStateNotFound": true,
	"syncStateInvalid":  true,
	"SyncStateInvalid":  true,
	"resyncRequired":    true,
}

type OutlookProvider struct {
	oauth   *oauthClient
	apiBase string
}

func NewOutlookProvider(opts Options, tenantID string) *OutlookProvider {
	if tenantID == "" {
		tenantID = "common"
	}
	endpoint := opts.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = microsoft.AzureADEndpoint(tenantID)
	}
	apiBase := strings.TrimRight(opts.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = graphBaseURL
	}
	return &OutlookProvider{
		oauth: &oauthClient{
			name: NameOutlook,
			config: &oauth2.Config{
				ClientID:     opts.ClientID,
				ClientSecret: opts.ClientSecret,
				RedirectURL:  opts.RedirectURI,
				Scopes:       outlookScopes,
				Endpoint:     endpoint,
			},
			client: opts.httpClient(),
			now:    opts.clock(),
		},
		apiBase: apiBase,
	}
}

func (p *OutlookProvider) Name() string {
	return NameOutlook
}

// GenerateAuthURL uses PKCE with an S256 challenge. The verifier must be
// presented again at code exchange.
func (p *OutlookProvider) GenerateAuthURL(userID string) (*AuthURLResult, error) {
	state, err := NewState(userID, p.oauth.now())
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "outlook: failed to create state", err)
	}
	verifier := oauth2.GenerateVerifier()
	authURL := p.oauth.config.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("response_mode", "query"),
	)
	return &AuthURLResult{URL: authURL, State: state, CodeVerifier: verifier}, nil
}

func (p *OutlookProvider) ExchangeCodeForTokens(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	return p.oauth.exchange(ctx, code, codeVerifier)
}

func (p *OutlookProvider) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return p.oauth.refresh(ctx, refreshToken)
}

type graphCalendar struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	IsDefaultCalendar bool   `json:"isDefaultCalendar"`
	CanEdit           bool   `json:"canEdit"`
	HexColor          string `json:"hexColor"`
	Owner             *struct {
		Address string `json:"address"`
	} `json:"owner"`
}

type graphCalendarPage struct {
	Value    []graphCalendar `json:"value"`
	NextLink string          `json:"@odata.nextLink"`
}

func (p *OutlookProvider) ListCalendars(ctx context.Context, accessToken, pageToken string) (*CalendarList, error) {
	target := pageToken
	if target == "" {
		target = p.apiBase + "/me/calendars?$top=100&$select=id,name,isDefaultCalendar,canEdit,hexColor,owner"
	}

	var page graphCalendarPage
	if err := p.get(ctx, accessToken, target, 0, &page); err != nil {
		logger.Error("OutlookProvider:ListCalendars:Error", "error", err)
		return nil, err
	}

	list := &CalendarList{NextPageToken: page.NextLink}
	for _, c := range page.Value {
		cal := Calendar{
			ID:        c.ID,
			Name:      c.Name,
			IsPrimary: c.IsDefaultCalendar,
			CanWrite:  c.CanEdit,
			Color:     c.HexColor,
		}
		if c.Owner != nil {
			cal.Owner = c.Owner.Address
		}
		list.Calendars = append(list.Calendars, cal)
	}
	return list, nil
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEvent struct {
	ID             string         `json:"id"`
	Subject        string         `json:"subject"`
	BodyPreview    string         `json:"bodyPreview"`
	Start          *graphDateTime `json:"start"`
	End            *graphDateTime `json:"end"`
	IsAllDay       bool           `json:"isAllDay"`
	IsCancelled    bool           `json:"isCancelled"`
	ShowAs         string         `json:"showAs"`
	Type           string         `json:"type"`
	SeriesMasterID string         `json:"seriesMasterId"`
	Location       *struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	Attendees []struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
		Status *struct {
			Response string `json:"response"`
		} `json:"status"`
	} `json:"attendees"`
	IsOnlineMeeting  bool   `json:"isOnlineMeeting"`
	OnlineMeetingURL string `json:"onlineMeetingUrl"`
	OnlineMeeting    *struct {
		JoinURL string `json:"joinUrl"`
	} `json:"onlineMeeting"`
	Recurrence *graphRecurrence `json:"recurrence"`
	Removed    *struct {
		Reason string `json:"reason"`
	} `json:"@removed"`
}

type graphRecurrence struct {
	Pattern struct {
		Type       string   `json:"type"`
		Interval   int      `json:"interval"`
		DaysOfWeek []string `json:"daysOfWeek"`
	} `json:"pattern"`
	Range struct {
		Type    string `json:"type"`
		EndDate string `json:"endDate"`
	} `json:"range"`
}

type graphEventPage struct {
	Value     []graphEvent `json:"value"`
	NextLink  string       `json:"@odata.nextLink"`
	DeltaLink string       `json:"@odata.deltaLink"`
}

// FetchEvents pages through calendarView/delta. Page tokens and sync tokens
// are the opaque nextLink and deltaLink URLs returned by Graph.
func (p *OutlookProvider) FetchEvents(ctx context.Context, accessToken, calendarID string, opts FetchEventsOptions) (*FetchEventsResult, error) {
	var target string
	switch {
	case opts.PageToken != "":
		target = opts.PageToken
	case opts.Incremental():
		target = opts.SyncToken
	default:
		query := url.Values{}
		query.Set("startDateTime", opts.TimeMin.UTC().Format(time.RFC3339))
		query.Set("endDateTime", opts.TimeMax.UTC().Format(time.RFC3339))
		target = fmt.Sprintf("%s/me/calendars/%s/calendarView/delta?%s",
			p.apiBase, url.PathEscape(calendarID), query.Encode())
	}

	var page graphEventPage
	if err := p.get(ctx, accessToken, target, opts.MaxResults, &page); err != nil {
		if !errors.HasCode(err, errors.ErrSyncTokenExpired) {
			logger.Error("OutlookProvider:FetchEvents:Error", "calendar_id", calendarID, "error", err)
		}
		return nil, err
	}

	result := &FetchEventsResult{
		NextPageToken: page.NextLink,
		NextSyncToken: page.DeltaLink,
	}
	for _, item := range page.Value {
		if item.Removed != nil || item.IsCancelled {
			result.DeletedEventIDs = append(result.DeletedEventIDs, item.ID)
			continue
		}
		event, err := convertGraphEvent(calendarID, item)
		if err != nil {
			logger.Warn("OutlookProvider:FetchEvents:SkipEvent", "event_id", item.ID, "error", err)
			continue
		}
		result.Events = append(result.Events, event)
	}
	sort.SliceStable(result.Events, func(i, j int) bool {
		return result.Events[i].StartTime.Before(result.Events[j].StartTime)
	})
	return result, nil
}

type graphErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OutlookProvider) get(ctx context.Context, accessToken, target string, pageSize int, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.NewAppError(errors.ErrProviderFetchFailed, "outlook: invalid request url", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Add("Prefer", `outlook.timezone="UTC"`)
	if pageSize > 0 {
		req.Header.Add("Prefer", fmt.Sprintf("odata.maxpagesize=%d", pageSize))
	}

	resp, err := p.oauth.client.Do(req)
	if err != nil {
		return errors.NewAppError(errors.ErrProviderFetchFailed, "outlook: request failed: "+err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewAppError(errors.ErrProviderFetchFailed, "outlook: failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr graphErrorBody
		_ = json.Unmarshal(body, &apiErr)
		msg := fmt.Sprintf("outlook: graph error %d", resp.StatusCode)
		if apiErr.Error.Message != "" {
			msg = fmt.Sprintf("%s %s: %s", msg, apiErr.Error.Code, apiErr.Error.Message)
		}
		cause := fmt.Errorf("%s", msg)
		if resp.StatusCode == http.StatusGone || graphExpiredCursorCodes[apiErr.Error.Code] {
			return errors.NewAppError(errors.ErrSyncTokenExpired, "outlook: delta link expired", cause)
		}
		return errors.NewAppError(errors.ErrProviderFetchFailed, msg, cause)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewAppError(errors.ErrProviderFetchFailed, "outlook: failed to decode response", err)
	}
	return nil
}

func convertGraphEvent(calendarID string, item graphEvent) (ExternalEvent, error) {
	start, err := parseGraphTime(item.Start)
	if err != nil {
		return ExternalEvent{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseGraphTime(item.End)
	if err != nil {
		return ExternalEvent{}, fmt.Errorf("end: %w", err)
	}

	title := strings.TrimSpace(item.Subject)
	if title == "" {
		title = untitledEvent
	}

	attendees := make([]Attendee, 0, len(item.Attendees))
	for _, a := range item.Attendees {
		attendee := Attendee{Email: a.EmailAddress.Address, Name: a.EmailAddress.Name}
		if a.Status != nil {
			attendee.ResponseStatus = a.Status.Response
		}
		attendees = append(attendees, attendee)
	}
	hasConference := item.IsOnlineMeeting || item.OnlineMeetingURL != "" ||
		(item.OnlineMeeting != nil && item.OnlineMeeting.JoinURL != "")

	location := ""
	if item.Location != nil {
		location = item.Location.DisplayName
	}

	return ExternalEvent{
		ID:               item.ID,
		CalendarID:       calendarID,
		Title:            title,
		Description:      item.BodyPreview,
		Location:         location,
		StartTime:        start,
		EndTime:          end,
		IsAllDay:         item.IsAllDay,
		Status:           item.ShowAs,
		IsMeeting:        len(attendees) > 0 || hasConference,
		Attendees:        attendees,
		IsRecurring:      item.SeriesMasterID != "" || item.Recurrence != nil,
		RecurringEventID: item.SeriesMasterID,
		Recurrence:       recurrenceRules(item.Recurrence),
	}, nil
}

func parseGraphTime(t *graphDateTime) (time.Time, error) {
	if t == nil || t.DateTime == "" {
		return time.Time{}, fmt.Errorf("missing time")
	}
	loc := time.UTC
	if t.TimeZone != "" && !strings.EqualFold(t.TimeZone, "UTC") {
		if l, err := time.LoadLocation(t.TimeZone); err == nil {
			loc = l
		}
	}
	parsed, err := time.ParseInLocation("2006-01-02T15:04:05.9999999", t.DateTime, loc)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

var graphFrequencies = map[string]string{
	"daily":           "DAILY",
	"weekly":          "WEEKLY",
	"absoluteMonthly": "MONTHLY",
	"relativeMonthly": "MONTHLY",
	"absoluteYearly":  "YEARLY",
	"relativeYearly":  "YEARLY",
}

// recurrenceRules renders a Graph pattern as an RRULE string.
func recurrenceRules(r *graphRecurrence) []string {
	if r == nil {
		return nil
	}
	freq, ok := graphFrequencies[r.Pattern.Type]
	if !ok {
		return nil
	}
	parts := []string{"FREQ=" + freq}
	if r.Pattern.Interval > 1 {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", r.Pattern.Interval))
	}
	if len(r.Pattern.DaysOfWeek) > 0 {
		days := make([]string, 0, len(r.Pattern.DaysOfWeek))
		for _, d := range r.Pattern.DaysOfWeek {
			if len(d) >= 2 {
				days = append(days, strings.ToUpper(d[:2]))
			}
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}
	if r.Range.Type == "endDate" && r.Range.EndDate != "" {
		parts = append(parts, "UNTIL="+strings.ReplaceAll(r.Range.EndDate, "-", ""))
	}
	return []string{"RRULE:" + strings.Join(parts, ";")}
}
