package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/campusflow/campusflow/internal/config"
	"github.com/campusflow/campusflow/internal/utils"
	"github.com/campusflow/campusflow/pkg/connector"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const defaultCalendarId = "primary"

// unknownExpiry replaces a missing token expiry so the first call refreshes the access token.
var unknownExpiry = time.Unix(1, 0)

// Adapter talks to Google Calendar with the token pair stored for a user.
type Adapter struct {
	oauthConfig *oauth2.Config
	httpClient  *http.Client
	endpoint    string
	revokeURL   string
	location    *time.Location
	duration    time.Duration
	pastDays    int
	futureDays  int
	clock       utils.Clock
}

func NewAdapter(cfg config.Application, clock utils.Clock) (*Adapter, error) {
	location, err := time.LoadLocation(cfg.Sync.Timezone)
	if err != nil {
		err := fmt.Errorf("could not load location for timezone %s: %w", cfg.Sync.Timezone, err)
		log.Error(err)
		return nil, err
	}
	duration := cfg.Sync.DefaultEventDuration
	if duration <= 0 {
		duration = time.Hour
	}
	return &Adapter{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.Google.ClientId,
			ClientSecret: cfg.Google.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gcal.CalendarEventsScope, gcal.CalendarReadonlyScope},
		},
		httpClient: &http.Client{Timeout: cfg.Google.RequestTimeout},
		endpoint:   cfg.Google.Endpoint,
		revokeURL:  cfg.Google.RevokeURL,
		location:   location,
		duration:   duration,
		pastDays:   cfg.Sync.PullWindowPastDays,
		futureDays: cfg.Sync.PullWindowFutureDays,
		clock:      clock,
	}, nil
}

func (a *Adapter) Provider() connector.Provider {
	return connector.Google
}

func (a *Adapter) ValidateCredentials(creds connector.Credentials) (connector.Connection, error) {
	var missing []string
	if strings.TrimSpace(creds.AccessToken) == "" {
		missing = append(missing, "accessToken")
	}
	if strings.TrimSpace(creds.RefreshToken) == "" {
		missing = append(missing, "refreshToken")
	}
	if len(missing) > 0 {
		return connector.Connection{}, fmt.Errorf("%w: %s required", connector.ErrMissingCredentials, strings.Join(missing, " and "))
	}
	return connector.Connection{CalendarId: calendarIdOf(creds)}, nil
}

func (a *Adapter) Open(ctx context.Context, creds connector.Credentials) (connector.RemoteCalendar, error) {
	service, err := a.calendarService(ctx, creds)
	if err != nil {
		return nil, err
	}
	return &Calendar{service: service, calendarId: calendarIdOf(creds), adapter: a}, nil
}

// Revoke invalidates the refresh token at Google. The token pair is dropped locally either way.
func (a *Adapter) Revoke(ctx context.Context, creds connector.Credentials) error {
	token := creds.RefreshToken
	if token == "" {
		token = creds.AccessToken
	}
	if token == "" || a.revokeURL == "" {
		return nil
	}
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return connector.External(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return connector.HTTPStatusError(resp.StatusCode, fmt.Errorf("token revocation answered %s", resp.Status))
	}
	log.Debug("revoked Google token")
	return nil
}

// ListCalendars returns the calendars the token pair can see.
func (a *Adapter) ListCalendars(ctx context.Context, creds connector.Credentials) ([]CalendarItem, error) {
	service, err := a.calendarService(ctx, creds)
	if err != nil {
		return nil, err
	}
	calendars, err := service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		err := fmt.Errorf("unable to retrieve calendars from Google Calendar: %w", err)
		log.Error(err)
		return nil, classify(ctx, err)
	}
	items := make([]CalendarItem, 0, len(calendars.Items))
	for _, cal := range calendars.Items {
		items = append(items, CalendarItem{ID: cal.Id, Summary: cal.Summary, Primary: cal.Primary})
	}
	return items, nil
}

func (a *Adapter) calendarService(ctx context.Context, creds connector.Credentials) (*gcal.Service, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.Expiry,
		TokenType:    "Bearer",
	}
	if token.Expiry.IsZero() {
		// oauth2 never refreshes a token without expiry
		token.Expiry = unknownExpiry
	}
	client := a.oauthConfig.Client(context.WithValue(ctx, oauth2.HTTPClient, a.httpClient), token)

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		err := fmt.Errorf("unable to create Calendar client: %w", err)
		log.Error(err)
		return nil, connector.External(err)
	}
	return service, nil
}

func calendarIdOf(creds connector.Credentials) string {
	if id := strings.TrimSpace(creds.CalendarId); id != "" {
		return id
	}
	return defaultCalendarId
}

// classify maps a Google failure onto the connector errors. Only the end of ctx is reported as
// is; a client timeout is retryable like any other network failure.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return connector.HTTPStatusError(apiErr.Code, err)
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
			return connector.Transient(err)
		}
		return fmt.Errorf("%w: %w", connector.ErrProviderAuth, err)
	}
	return connector.Transient(err)
}

func isConflict(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

var _ connector.Adapter = (*Adapter)(nil)
