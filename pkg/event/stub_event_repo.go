package event

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type RepositoryStub struct {
	mu     sync.RWMutex
	events map[string]Event
	links  map[string]map[Source]SyncLink // event id -> provider -> link
	// Err, when set, is returned by every call.
	Err error
	// StoreHook, when set, runs before StoreEvent and fails it with the returned error.
	StoreHook func(event Event) error
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		events: make(map[string]Event),
		links:  make(map[string]map[Source]SyncLink),
	}
}

func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	r.mu.Lock()
	events := make(map[string]Event, len(r.events))
	for k, v := range r.events {
		events[k] = v
	}
	links := make(map[string]map[Source]SyncLink, len(r.links))
	for k, v := range r.links {
		inner := make(map[Source]SyncLink, len(v))
		for p, l := range v {
			inner[p] = l
		}
		links[k] = inner
	}
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.events = events
		r.links = links
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *RepositoryStub) StoreEvent(ctx context.Context, event Event) (Event, error) {
	if r.Err != nil {
		return Event{}, r.Err
	}
	if r.StoreHook != nil {
		if err := r.StoreHook(event); err != nil {
			return Event{}, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	event.Id = uuid.New().String()
	event.Links = nil
	r.events[event.Id] = event
	return event, nil
}

func (r *RepositoryStub) GetEvent(ctx context.Context, id string) (Event, error) {
	if r.Err != nil {
		return Event{}, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.events[id]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return r.withLinks(event), nil
}

func (r *RepositoryStub) UpdateEvent(ctx context.Context, event Event) (Event, error) {
	if r.Err != nil {
		return Event{}, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.events[event.Id]
	if !ok || existing.UserId != event.UserId {
		return Event{}, ErrEventNotFound
	}
	event.Source = existing.Source
	event.SourceId = existing.SourceId
	event.CreatedAt = existing.CreatedAt
	event.Links = nil
	r.events[event.Id] = event
	return event, nil
}

func (r *RepositoryStub) DeleteEvent(ctx context.Context, userId string, id string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.events[id]
	if !ok || existing.UserId != userId {
		return ErrEventNotFound
	}
	delete(r.events, id)
	delete(r.links, id)
	return nil
}

func (r *RepositoryStub) FindEvents(ctx context.Context, userId string, q Query) ([]Event, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if e.UserId != userId {
			continue
		}
		if q.From != nil && e.Date.Before(*q.From) {
			continue
		}
		if q.To != nil && e.Date.After(*q.To) {
			continue
		}
		if len(q.Sources) > 0 && !slices.Contains(q.Sources, e.Source) {
			continue
		}
		result = append(result, r.withLinks(e))
	}
	slices.SortFunc(result, func(a, b Event) int {
		return Compare(a, b)
	})
	return result, nil
}

func (r *RepositoryStub) FindByExternalId(ctx context.Context, userId string, source Source, externalId string) (Event, error) {
	if r.Err != nil {
		return Event{}, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.events {
		if e.UserId == userId && e.Source == source && e.ExternalId == externalId {
			return e, nil
		}
	}
	return Event{}, ErrEventNotFound
}

func (r *RepositoryStub) MarkLinksPending(ctx context.Context, userId string, provider Source, eventIds []string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range eventIds {
		e, ok := r.events[id]
		if !ok || e.UserId != userId {
			continue
		}
		link := r.links[id][provider]
		link.Provider = provider
		link.Status = SyncStatusPending
		r.putLink(id, link)
	}
	return nil
}

func (r *RepositoryStub) SaveLink(ctx context.Context, userId string, eventId string, link SyncLink) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventId]
	if !ok || e.UserId != userId {
		return nil
	}
	existing := r.links[eventId][link.Provider]
	if link.ExternalId == "" {
		link.ExternalId = existing.ExternalId
	}
	if link.SyncedAt == nil {
		link.SyncedAt = existing.SyncedAt
	}
	r.putLink(eventId, link)
	return nil
}

func (r *RepositoryStub) HasLinkWithExternalId(ctx context.Context, userId string, provider Source, externalId string) (bool, error) {
	if r.Err != nil {
		return false, r.Err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for eventId, byProvider := range r.links {
		if r.events[eventId].UserId != userId {
			continue
		}
		if l, ok := byProvider[provider]; ok && l.ExternalId == externalId {
			return true, nil
		}
	}
	return false, nil
}

func (r *RepositoryStub) DeleteLinks(ctx context.Context, userId string, provider Source) (int, error) {
	if r.Err != nil {
		return 0, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for eventId, byProvider := range r.links {
		if r.events[eventId].UserId != userId {
			continue
		}
		if _, ok := byProvider[provider]; ok {
			delete(byProvider, provider)
			deleted++
		}
	}
	return deleted, nil
}

// Put stores the event as is, keeping its id. Used to seed tests.
func (r *RepositoryStub) Put(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.Id] = event
	for _, l := range event.Links {
		r.putLink(event.Id, l)
	}
}

func (r *RepositoryStub) putLink(eventId string, link SyncLink) {
	if r.links[eventId] == nil {
		r.links[eventId] = make(map[Source]SyncLink)
	}
	r.links[eventId][link.Provider] = link
}

func (r *RepositoryStub) withLinks(e Event) Event {
	byProvider := r.links[e.Id]
	if len(byProvider) == 0 {
		e.Links = nil
		return e
	}
	e.Links = make([]SyncLink, 0, len(byProvider))
	for _, l := range byProvider {
		e.Links = append(e.Links, l)
	}
	slices.SortFunc(e.Links, func(a, b SyncLink) int {
		if a.Provider < b.Provider {
			return -1
		}
		if a.Provider > b.Provider {
			return 1
		}
		return 0
	})
	return e
}

var _ Repository = (*RepositoryStub)(nil)
