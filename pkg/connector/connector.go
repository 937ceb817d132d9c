package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusflow/campusflow/pkg/event"
)

type Provider string

const (
	Google Provider = "google"
	Apple  Provider = "apple"
)

var (
	ErrInvalidProvider    = errors.New("invalid provider")
	ErrNotConnected       = errors.New("provider is not connected")
	ErrMissingCredentials = errors.New("missing credentials")

	ErrExternalService = errors.New("external service failure")
	// ErrProviderAuth means the provider rejected the stored credentials. Never retried.
	ErrProviderAuth = fmt.Errorf("%w: provider rejected credentials", ErrExternalService)
	// ErrTransient marks failures worth retrying: timeouts, throttling, 5xx.
	ErrTransient = fmt.Errorf("%w: transient provider failure", ErrExternalService)
	// ErrRemoteGone is returned by Update when the external copy was deleted.
	ErrRemoteGone = fmt.Errorf("%w: remote event no longer exists", ErrExternalService)
)

func ParseProvider(value string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(value))); p {
	case Google, Apple:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidProvider, value)
}

func (p Provider) Source() event.Source {
	return event.Source(p)
}

// Credentials are the secrets needed to talk to one provider. Google uses the token pair,
// Apple uses server URL plus basic auth.
type Credentials struct {
	AccessToken  string    `json:"accessToken,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	CalendarId   string    `json:"calendarId,omitempty"`

	ServerUrl    string `json:"serverUrl,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	CalendarName string `json:"calendarName,omitempty"`
}

func (c Credentials) String() string {
	return "Credentials{<redacted>}"
}

func (c Credentials) GoString() string {
	return c.String()
}

// Connection is the non-secret metadata shown to the user after connecting.
type Connection struct {
	CalendarId   string
	ServerUrl    string
	CalendarName string
}

type Session struct {
	UserId      string
	Credentials Credentials
}

// Adapter is implemented once per provider. Adapters hold no per-user state.
type Adapter interface {
	Provider() Provider
	// ValidateCredentials checks the credential shape and returns the connection metadata.
	ValidateCredentials(creds Credentials) (Connection, error)
	Open(ctx context.Context, creds Credentials) (RemoteCalendar, error)
	Revoke(ctx context.Context, creds Credentials) error
}

type RemoteCalendar interface {
	Insert(ctx context.Context, e event.Event) (string, error)
	Update(ctx context.Context, externalId string, e event.Event) error
	// List returns the provider's events with ExternalId set. Title, Date, Time and
	// Description are filled; Source is set by the caller.
	List(ctx context.Context) ([]RemoteEvent, error)
}

// RemoteEvent is an event as read from a provider. OriginId is our own event id when the
// remote copy was created by a push.
type RemoteEvent struct {
	Event    event.Event
	OriginId string
}

// Transient marks err as retryable.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// External marks err as a non retryable provider failure.
func External(err error) error {
	return fmt.Errorf("%w: %w", ErrExternalService, err)
}

// HTTPStatusError classifies a provider response status.
func HTTPStatusError(status int, err error) error {
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%w: %w", ErrProviderAuth, err)
	case status == 404 || status == 410:
		return fmt.Errorf("%w: %w", ErrRemoteGone, err)
	case status == 408 || status == 429 || status >= 500:
		return Transient(err)
	default:
		return External(err)
	}
}
