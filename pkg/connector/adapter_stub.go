package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/campusflow/campusflow/pkg/event"
)

// StubAdapter is an in-memory provider used by tests.
type StubAdapter struct {
	Name      Provider
	Remote    *StubRemote
	OpenErr   error
	RevokeErr error

	mu      sync.Mutex
	revoked int
}

func NewStubAdapter(name Provider) *StubAdapter {
	return &StubAdapter{Name: name, Remote: NewStubRemote()}
}

func (a *StubAdapter) Provider() Provider {
	return a.Name
}

func (a *StubAdapter) ValidateCredentials(creds Credentials) (Connection, error) {
	switch a.Name {
	case Google:
		if creds.AccessToken == "" || creds.RefreshToken == "" {
			return Connection{}, fmt.Errorf("%w: accessToken and refreshToken are required", ErrMissingCredentials)
		}
		return Connection{CalendarId: "primary"}, nil
	default:
		if creds.ServerUrl == "" || creds.Username == "" || creds.Password == "" {
			return Connection{}, fmt.Errorf("%w: serverUrl, username and password are required", ErrMissingCredentials)
		}
		return Connection{ServerUrl: creds.ServerUrl, CalendarName: creds.CalendarName}, nil
	}
}

func (a *StubAdapter) Open(ctx context.Context, creds Credentials) (RemoteCalendar, error) {
	if a.OpenErr != nil {
		return nil, a.OpenErr
	}
	return a.Remote, nil
}

func (a *StubAdapter) Revoke(ctx context.Context, creds Credentials) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked++
	return a.RevokeErr
}

func (a *StubAdapter) Revoked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.revoked
}

type StubRemote struct {
	mu      sync.Mutex
	events  map[string]RemoteEvent
	nextId  int
	inserts int
	updates int

	// Hooks, when set, decide the result of a call before it is applied.
	InsertHook func(ctx context.Context, e event.Event) error
	UpdateHook func(ctx context.Context, externalId string, e event.Event) error
	ListErr    error
}

func NewStubRemote() *StubRemote {
	return &StubRemote{events: make(map[string]RemoteEvent)}
}

func (r *StubRemote) Insert(ctx context.Context, e event.Event) (string, error) {
	if r.InsertHook != nil {
		if err := r.InsertHook(ctx, e); err != nil {
			return "", err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextId++
	r.inserts++
	id := fmt.Sprintf("remote-%d", r.nextId)
	r.events[id] = RemoteEvent{Event: withExternalId(e, id), OriginId: e.Id}
	return id, nil
}

func (r *StubRemote) Update(ctx context.Context, externalId string, e event.Event) error {
	if r.UpdateHook != nil {
		if err := r.UpdateHook(ctx, externalId, e); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[externalId]; !ok {
		return ErrRemoteGone
	}
	r.updates++
	r.events[externalId] = RemoteEvent{Event: withExternalId(e, externalId), OriginId: e.Id}
	return nil
}

func (r *StubRemote) List(ctx context.Context) ([]RemoteEvent, error) {
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.events))
	for id := range r.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	items := make([]RemoteEvent, 0, len(ids))
	for _, id := range ids {
		items = append(items, r.events[id])
	}
	return items, nil
}

// Put adds an event created directly at the provider.
func (r *StubRemote) Put(externalId string, e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[externalId] = RemoteEvent{Event: withExternalId(e, externalId)}
}

func (r *StubRemote) Remove(externalId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, externalId)
}

func (r *StubRemote) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *StubRemote) Inserts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inserts
}

func (r *StubRemote) Updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

func withExternalId(e event.Event, externalId string) event.Event {
	e.ExternalId = externalId
	return e
}

var _ Adapter = (*StubAdapter)(nil)
var _ RemoteCalendar = (*StubRemote)(nil)
