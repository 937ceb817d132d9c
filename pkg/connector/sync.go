package connector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campusflow/campusflow/internal/utils"
	"github.com/campusflow/campusflow/pkg/event"
	log "github.com/sirupsen/logrus"
)

// Outcome is the result of pushing one event.
type Outcome struct {
	EventId    string
	ExternalId string
	Status     event.SyncStatus
	Err        error
	At         time.Time
}

// Recorder persists push outcomes as they happen. It is called with a context that is not
// cancelled with the push. A Record error aborts the push.
type Recorder interface {
	Record(ctx context.Context, outcome Outcome) error
}

type RecorderFunc func(ctx context.Context, outcome Outcome) error

func (f RecorderFunc) Record(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}

type EventError struct {
	EventId string
	Err     error
}

type PushResult struct {
	Synced  int
	Failed  int
	Pending int
	Errors  []EventError
}

// Connector drives one provider adapter. It keeps no state between calls.
type Connector struct {
	adapter Adapter
	retry   RetryPolicy
	clock   utils.Clock
}

func New(adapter Adapter, retry RetryPolicy, clock utils.Clock) *Connector {
	return &Connector{adapter: adapter, retry: retry, clock: clock}
}

func (c *Connector) Provider() Provider {
	return c.adapter.Provider()
}

// Connect validates the credential shape. Storing them is up to the caller.
func (c *Connector) Connect(creds Credentials) (Connection, error) {
	conn, err := c.adapter.ValidateCredentials(creds)
	if err != nil {
		if errors.Is(err, ErrMissingCredentials) {
			return Connection{}, err
		}
		return Connection{}, fmt.Errorf("%w: %w", ErrMissingCredentials, err)
	}
	return conn, nil
}

// Push creates or updates the remote copy of every manual event. Events are handled one by
// one; a failing event does not stop the rest. When ctx ends, every event not yet confirmed
// is recorded as pending.
func (c *Connector) Push(ctx context.Context, session Session, events []event.Event, recorder Recorder) (PushResult, error) {
	provider := c.Provider()
	result := PushResult{}

	manual := make([]event.Event, 0, len(events))
	for _, e := range events {
		if e.Source == event.SourceManual {
			manual = append(manual, e)
		}
	}
	if len(manual) == 0 {
		return result, nil
	}

	var remote RemoteCalendar
	err := c.retry.Do(ctx, string(provider)+" open", func() error {
		var openErr error
		remote, openErr = c.adapter.Open(ctx, session.Credentials)
		return openErr
	})
	if err != nil {
		return result, c.external(err)
	}

	for i, e := range manual {
		if ctx.Err() != nil {
			if err := c.recordPending(ctx, manual[i:], recorder, &result); err != nil {
				return result, err
			}
			break
		}

		externalId, err := c.pushOne(ctx, remote, e)
		outcome := Outcome{EventId: e.Id, At: c.clock.Now()}
		switch {
		case err == nil:
			outcome.Status = event.SyncStatusSynced
			outcome.ExternalId = externalId
			result.Synced++
		case ctx.Err() != nil:
			outcome.Status = event.SyncStatusPending
			outcome.Err = ctx.Err()
			result.Pending++
		default:
			err = c.external(err)
			outcome.Status = event.SyncStatusFailed
			outcome.Err = err
			result.Failed++
			result.Errors = append(result.Errors, EventError{EventId: e.Id, Err: err})
			log.Warnf("failed to push event %s to %s for user %s: %v", e.Id, provider, session.UserId, err)
		}

		if err := recorder.Record(context.WithoutCancel(ctx), outcome); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (c *Connector) pushOne(ctx context.Context, remote RemoteCalendar, e event.Event) (string, error) {
	if link, ok := e.Link(c.Provider().Source()); ok && link.ExternalId != "" {
		err := c.retry.Do(ctx, string(c.Provider())+" update", func() error {
			return remote.Update(ctx, link.ExternalId, e)
		})
		if err == nil {
			return link.ExternalId, nil
		}
		if !errors.Is(err, ErrRemoteGone) {
			return "", err
		}
		log.Infof("remote copy %s of event %s is gone, creating it again", link.ExternalId, e.Id)
	}

	var externalId string
	err := c.retry.Do(ctx, string(c.Provider())+" insert", func() error {
		var insertErr error
		externalId, insertErr = remote.Insert(ctx, e)
		return insertErr
	})
	return externalId, err
}

func (c *Connector) recordPending(ctx context.Context, events []event.Event, recorder Recorder, result *PushResult) error {
	for _, e := range events {
		result.Pending++
		err := recorder.Record(context.WithoutCancel(ctx), Outcome{EventId: e.Id, Status: event.SyncStatusPending, Err: ctx.Err(), At: c.clock.Now()})
		if err != nil {
			return err
		}
	}
	return nil
}

// Pull fetches the provider's events translated to the local shape. It does not deduplicate.
func (c *Connector) Pull(ctx context.Context, session Session) ([]RemoteEvent, error) {
	provider := c.Provider()

	var remote RemoteCalendar
	err := c.retry.Do(ctx, string(provider)+" open", func() error {
		var openErr error
		remote, openErr = c.adapter.Open(ctx, session.Credentials)
		return openErr
	})
	if err != nil {
		return nil, c.external(err)
	}

	var items []RemoteEvent
	err = c.retry.Do(ctx, string(provider)+" list", func() error {
		var listErr error
		items, listErr = remote.List(ctx)
		return listErr
	})
	if err != nil {
		return nil, c.external(err)
	}

	for i := range items {
		items[i].Event.Id = ""
		items[i].Event.UserId = session.UserId
		items[i].Event.Source = provider.Source()
		items[i].Event.SyncStatus = event.SyncStatusSynced
		items[i].Event.Links = nil
	}
	return items, nil
}

// Disconnect revokes the credentials at the provider.
func (c *Connector) Disconnect(ctx context.Context, creds Credentials) error {
	err := c.retry.Do(ctx, string(c.Provider())+" revoke", func() error {
		return c.adapter.Revoke(ctx, creds)
	})
	if err != nil {
		return c.external(err)
	}
	return nil
}

func (c *Connector) external(err error) error {
	if errors.Is(err, ErrExternalService) {
		return err
	}
	return External(err)
}
