package provider

import (
	"context"
	"net/http"
	"time"

	"homeschool-api/core/constants"

	"golang.org/x/oauth2"
)

const (
	NameGoogle  = "google"
	NameOutlook = "outlook"

	untitledEvent = "(No title)"
)

// Provider is implemented once per external calendar service. The sync
// orchestrator only talks to calendars through this contract.
type Provider interface {
	Name() string
	GenerateAuthURL(userID string) (*AuthURLResult, error)
	ExchangeCodeForTokens(ctx context.Context, code, codeVerifier string) (*TokenResponse, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
	ListCalendars(ctx context.Context, accessToken, pageToken string) (*CalendarList, error)
	FetchEvents(ctx context.Context, accessToken, calendarID string, opts FetchEventsOptions) (*FetchEventsResult, error)
}

type AuthURLResult struct {
	URL          string `json:"url"`
	State        string `json:"state"`
	CodeVerifier string `json:"code_verifier,omitempty"`
}

type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int64     `json:"expires_in"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

type Calendar struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrimary bool   `json:"is_primary"`
	CanWrite  bool   `json:"can_write"`
	Color     string `json:"color,omitempty"`
	Owner     string `json:"owner,omitempty"`
}

type CalendarList struct {
	Calendars     []Calendar `json:"calendars"`
	NextPageToken string     `json:"next_page_token,omitempty"`
}

// FetchEventsOptions selects full mode (time window) or incremental mode
// (SyncToken). The two are never combined.
type FetchEventsOptions struct {
	TimeMin    time.Time
	TimeMax    time.Time
	SyncToken  string
	PageToken  string
	MaxResults int
}

func (o FetchEventsOptions) Incremental() bool {
	return o.SyncToken != ""
}

type FetchEventsResult struct {
	Events []ExternalEvent
	// DeletedEventIDs lists cancelled or removed events. They never appear in Events.
	DeletedEventIDs []string
	NextPageToken   string
	NextSyncToken   string
}

type Attendee struct {
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	ResponseStatus string `json:"response_status,omitempty"`
}

// ExternalEvent is a provider event normalized to a common shape.
type ExternalEvent struct {
	ID               string
	CalendarID       string
	Title            string
	Description      string
	Location         string
	StartTime        time.Time
	EndTime          time.Time
	IsAllDay         bool
	Status           string
	IsMeeting        bool
	Attendees        []Attendee
	IsRecurring      bool
	RecurringEventID string
	Recurrence       []string
}

// Options configures an adapter. Zero values select production endpoints.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Endpoint     oauth2.Endpoint
	APIBaseURL   string
	HTTPClient   *http.Client
	Now          func() time.Time
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: constants.ProviderTimeout}
}

func (o Options) clock() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

// DefaultWindow is the full sync range around now.
func DefaultWindow(now time.Time, lookbackDays, lookaheadDays int) (time.Time, time.Time) {
	return now.AddDate(0, 0, -lookbackDays), now.AddDate(0, 0, lookaheadDays)
}
