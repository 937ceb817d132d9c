package apple

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/campusflow/campusflow/internal/config"
	"github.com/campusflow/campusflow/internal/utils"
	"github.com/campusflow/campusflow/pkg/connector"
	log "github.com/sirupsen/logrus"
)

// Adapter talks CalDAV to iCloud or any other CalDAV server. The stored server URL is the
// calendar collection events are written to.
type Adapter struct {
	client     *http.Client
	location   *time.Location
	duration   time.Duration
	pastDays   int
	futureDays int
	clock      utils.Clock
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
		client:     &http.Client{Timeout: cfg.Apple.RequestTimeout},
		location:   location,
		duration:   duration,
		pastDays:   cfg.Sync.PullWindowPastDays,
		futureDays: cfg.Sync.PullWindowFutureDays,
		clock:      clock,
	}, nil
}

func (a *Adapter) Provider() connector.Provider {
	return connector.Apple
}

func (a *Adapter) ValidateCredentials(creds connector.Credentials) (connector.Connection, error) {
	var missing []string
	if strings.TrimSpace(creds.ServerUrl) == "" {
		missing = append(missing, "serverUrl")
	}
	if strings.TrimSpace(creds.Username) == "" {
		missing = append(missing, "username")
	}
	if creds.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return connector.Connection{}, fmt.Errorf("%w: %s required", connector.ErrMissingCredentials, strings.Join(missing, ", "))
	}
	if _, err := collectionURL(creds.ServerUrl); err != nil {
		return connector.Connection{}, fmt.Errorf("%w: %w", connector.ErrMissingCredentials, err)
	}
	return connector.Connection{ServerUrl: strings.TrimSpace(creds.ServerUrl), CalendarName: creds.CalendarName}, nil
}

func (a *Adapter) Open(ctx context.Context, creds connector.Credentials) (connector.RemoteCalendar, error) {
	collection, err := collectionURL(creds.ServerUrl)
	if err != nil {
		return nil, connector.External(err)
	}
	return &Calendar{
		collection: collection,
		username:   creds.Username,
		password:   creds.Password,
		adapter:    a,
	}, nil
}

// Revoke is a no-op: CalDAV has no token to invalidate. App-specific passwords are revoked
// by the user at Apple.
func (a *Adapter) Revoke(ctx context.Context, creds connector.Credentials) error {
	return nil
}

func collectionURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid serverUrl: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("invalid serverUrl %q: must be an absolute http(s) URL", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

var _ connector.Adapter = (*Adapter)(nil)
