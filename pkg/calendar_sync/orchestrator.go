package calendar_sync

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/campusflow/campusflow/internal/database"
	"github.com/campusflow/campusflow/internal/utils"
	"github.com/campusflow/campusflow/pkg/connector"
	"github.com/campusflow/campusflow/pkg/event"
	"github.com/campusflow/campusflow/pkg/sync_config"
	log "github.com/sirupsen/logrus"
)

type PushResult struct {
	Synced  int
	Failed  int
	Pending int
	Errors  []connector.EventError
}

type PullResult struct {
	Created   int
	Updated   int
	Unchanged int
	// Skipped counts remote copies of our own pushed events.
	Skipped int
	Errors  []connector.EventError
	Events  []event.Event
}

// Pulled is the number of imported events now mirrored locally.
func (r PullResult) Pulled() int {
	return r.Created + r.Updated + r.Unchanged
}

// Orchestrator runs connect, disconnect, push and pull for one (user, provider) pair at a time.
type Orchestrator struct {
	connectors map[connector.Provider]*connector.Connector
	configs    sync_config.Service
	events     event.Repository
	clock      utils.Clock
	locks      *keyedLock
}

func NewOrchestrator(configs sync_config.Service, events event.Repository, clock utils.Clock, connectors ...*connector.Connector) *Orchestrator {
	byProvider := make(map[connector.Provider]*connector.Connector, len(connectors))
	for _, c := range connectors {
		byProvider[c.Provider()] = c
	}
	return &Orchestrator{
		connectors: byProvider,
		configs:    configs,
		events:     events,
		clock:      clock,
		locks:      newKeyedLock(),
	}
}

func (o *Orchestrator) Connect(ctx context.Context, userId string, provider connector.Provider, creds connector.Credentials) error {
	conn, err := o.connector(provider)
	if err != nil {
		return err
	}
	connection, err := conn.Connect(creds)
	if err != nil {
		return err
	}

	release, err := o.locks.Acquire(ctx, lockKey{userId, provider})
	if err != nil {
		return err
	}
	defer release()

	return o.configs.Connect(ctx, userId, provider, creds, connection)
}

// Disconnect revokes the credentials at the provider when possible, then forgets them along
// with every sync link. Disconnecting a provider that is not connected succeeds.
func (o *Orchestrator) Disconnect(ctx context.Context, userId string, provider connector.Provider) error {
	conn, err := o.connector(provider)
	if err != nil {
		return err
	}

	release, err := o.locks.Acquire(ctx, lockKey{userId, provider})
	if err != nil {
		return err
	}
	defer release()

	creds, err := o.configs.Credentials(ctx, userId, provider)
	switch {
	case err == nil:
		if err := conn.Disconnect(ctx, creds); err != nil {
			log.Warnf("failed to revoke %s credentials of user %s: %v", provider, userId, err)
		}
	case errors.Is(err, connector.ErrNotConnected):
		log.Debugf("user %s has no %s credentials to revoke", userId, provider)
	default:
		return err
	}

	if err := o.configs.Disconnect(ctx, userId, provider); err != nil {
		return err
	}
	deleted, err := o.events.DeleteLinks(ctx, userId, provider.Source())
	if err != nil {
		return err
	}
	log.Debugf("dropped %d %s sync links of user %s", deleted, provider, userId)
	return nil
}

// PushEvents sends every manual event of the user to the provider. When ctx ends first, the
// events not yet confirmed stay pending and the context error is returned with the result.
func (o *Orchestrator) PushEvents(ctx context.Context, userId string, provider connector.Provider) (PushResult, error) {
	conn, err := o.connector(provider)
	if err != nil {
		return PushResult{}, err
	}

	release, err := o.locks.Acquire(ctx, lockKey{userId, provider})
	if err != nil {
		return PushResult{}, err
	}
	defer release()

	creds, err := o.configs.Credentials(ctx, userId, provider)
	if err != nil {
		return PushResult{}, err
	}

	manual, err := o.events.FindEvents(ctx, userId, event.Query{Sources: []event.Source{event.SourceManual}})
	if err != nil {
		return PushResult{}, err
	}
	if len(manual) == 0 {
		return PushResult{}, nil
	}

	ids := make([]string, 0, len(manual))
	for _, e := range manual {
		ids = append(ids, e.Id)
	}
	if err := o.events.MarkLinksPending(ctx, userId, provider.Source(), ids); err != nil {
		return PushResult{}, err
	}

	recorder := connector.RecorderFunc(func(ctx context.Context, outcome connector.Outcome) error {
		return o.events.SaveLink(ctx, userId, outcome.EventId, linkOf(provider, outcome))
	})
	pushed, err := conn.Push(ctx, connector.Session{UserId: userId, Credentials: creds}, manual, recorder)
	result := PushResult{Synced: pushed.Synced, Failed: pushed.Failed, Pending: pushed.Pending, Errors: pushed.Errors}
	if err != nil {
		return result, err
	}
	if result.Pending > 0 {
		return result, fmt.Errorf("push to %s interrupted with %d events pending: %w", provider, result.Pending, context.Cause(ctx))
	}

	if err := o.configs.MarkSynced(context.WithoutCancel(ctx), userId, provider, o.clock.Now()); err != nil {
		return result, err
	}
	log.Infof("pushed %d of %d events of user %s to %s", result.Synced, len(manual), userId, provider)
	return result, nil
}

// PullEvents imports the provider's events, updating earlier imports in place.
func (o *Orchestrator) PullEvents(ctx context.Context, userId string, provider connector.Provider) (PullResult, error) {
	conn, err := o.connector(provider)
	if err != nil {
		return PullResult{}, err
	}

	release, err := o.locks.Acquire(ctx, lockKey{userId, provider})
	if err != nil {
		return PullResult{}, err
	}
	defer release()

	creds, err := o.configs.Credentials(ctx, userId, provider)
	if err != nil {
		return PullResult{}, err
	}
	remote, err := conn.Pull(ctx, connector.Session{UserId: userId, Credentials: creds})
	if err != nil {
		return PullResult{}, err
	}

	result := PullResult{Events: make([]event.Event, 0, len(remote))}
	for _, item := range remote {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("pull from %s interrupted: %w", provider, context.Cause(ctx))
		}
		err := o.importOne(ctx, provider, item, &result)
		if err == nil {
			continue
		}
		if errors.Is(err, database.ErrStoreUnavailable) {
			return result, err
		}
		log.Warnf("failed to import %s event %s for user %s: %v", provider, item.Event.ExternalId, userId, err)
		result.Errors = append(result.Errors, connector.EventError{EventId: item.Event.ExternalId, Err: err})
	}

	if err := o.configs.MarkSynced(context.WithoutCancel(ctx), userId, provider, o.clock.Now()); err != nil {
		return result, err
	}
	log.Infof("pulled %d events of user %s from %s (%d created, %d updated, %d skipped)",
		result.Pulled(), userId, provider, result.Created, result.Updated, result.Skipped)
	return result, nil
}

func (o *Orchestrator) importOne(ctx context.Context, provider connector.Provider, item connector.RemoteEvent, result *PullResult) error {
	incoming := item.Event
	if incoming.ExternalId == "" {
		return fmt.Errorf("%w: remote event has no id", event.ErrValidation)
	}
	if item.OriginId != "" {
		result.Skipped++
		return nil
	}
	echo, err := o.events.HasLinkWithExternalId(ctx, incoming.UserId, provider.Source(), incoming.ExternalId)
	if err != nil {
		return err
	}
	if echo {
		result.Skipped++
		return nil
	}
	if !incoming.Category.Valid() {
		incoming.Category = event.CategoryPersonal
	}
	if incoming.Title == "" {
		return event.ErrEmptyTitle
	}
	if !incoming.Date.IsValid() {
		return event.ErrInvalidDate
	}

	now := o.clock.Now()
	existing, err := o.events.FindByExternalId(ctx, incoming.UserId, provider.Source(), incoming.ExternalId)
	switch {
	case errors.Is(err, event.ErrEventNotFound):
		incoming.CreatedAt = now
		incoming.UpdatedAt = now
		stored, err := o.events.StoreEvent(ctx, incoming)
		if err != nil {
			return err
		}
		result.Created++
		result.Events = append(result.Events, stored)
		return nil
	case err != nil:
		return err
	}

	if sameContent(existing, incoming) {
		result.Unchanged++
		result.Events = append(result.Events, existing)
		return nil
	}
	existing.Title = incoming.Title
	existing.Date = incoming.Date
	existing.Time = incoming.Time
	existing.Category = incoming.Category
	existing.Description = incoming.Description
	existing.SyncStatus = event.SyncStatusSynced
	existing.UpdatedAt = now
	stored, err := o.events.UpdateEvent(ctx, existing)
	if err != nil {
		return err
	}
	result.Updated++
	result.Events = append(result.Events, stored)
	return nil
}

func (o *Orchestrator) connector(provider connector.Provider) (*connector.Connector, error) {
	conn, ok := o.connectors[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", connector.ErrInvalidProvider, provider)
	}
	return conn, nil
}

func linkOf(provider connector.Provider, outcome connector.Outcome) event.SyncLink {
	link := event.SyncLink{
		Provider:   provider.Source(),
		ExternalId: outcome.ExternalId,
		Status:     outcome.Status,
	}
	if outcome.Err != nil {
		link.LastError = outcome.Err.Error()
	}
	if outcome.Status == event.SyncStatusSynced {
		at := outcome.At
		link.SyncedAt = &at
	}
	return link
}

func sameContent(a event.Event, b event.Event) bool {
	return a.Title == b.Title &&
		a.Date == b.Date &&
		sameTime(a.Time, b.Time) &&
		a.Category == b.Category &&
		a.Description == b.Description
}

func sameTime(a *civil.Time, b *civil.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Hour == b.Hour && a.Minute == b.Minute
}
