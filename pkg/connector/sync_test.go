package connector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/campusflow/campusflow/internal/utils"
	"github.com/campusflow/campusflow/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

type recorderStub struct {
	mu       sync.Mutex
	outcomes []Outcome
	err      error
}

func (r *recorderStub) Record(ctx context.Context, outcome Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.Err() != nil {
		return errors.New("recorder called with cancelled context")
	}
	r.outcomes = append(r.outcomes, outcome)
	return r.err
}

func (r *recorderStub) byEvent() map[string]Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make(map[string]Outcome, len(r.outcomes))
	for _, o := range r.outcomes {
		result[o.EventId] = o
	}
	return result
}

func manual(id string) event.Event {
	return event.Event{Id: id, UserId: "u1", Title: "Event " + id, Source: event.SourceManual, Category: event.CategoryPersonal}
}

func setupConnector() (*Connector, *StubAdapter) {
	adapter := NewStubAdapter(Google)
	return New(adapter, fastRetry, &utils.MockClock{FixedNow: time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC)}), adapter
}

func TestConnector_Push(t *testing.T) {
	t.Run("should insert new events and record synced outcomes", func(t *testing.T) {
		// given
		c, adapter := setupConnector()
		recorder := &recorderStub{}

		// when
		result, err := c.Push(context.Background(), Session{UserId: "u1"}, []event.Event{manual("e1"), manual("e2")}, recorder)

		// then
		require.NoError(t, err)
		assert.Equal(t, 2, result.Synced)
		assert.Equal(t, 2, adapter.Remote.Count())
		outcomes := recorder.byEvent()
		assert.Equal(t, event.SyncStatusSynced, outcomes["e1"].Status)
		assert.NotEmpty(t, outcomes["e1"].ExternalId)
	})

	t.Run("should update when event already has an external id", func(t *testing.T) {
		// given
		c, adapter := setupConnector()
		adapter.Remote.Put("remote-existing", manual("e1"))
		e := manual("e1")
		e.Links = []event.SyncLink{{Provider: event.SourceGoogle, ExternalId: "remote-existing", Status: event.SyncStatusSynced}}

		// when
		result, err := c.Push(context.Background(), Session{UserId: "u1"}, []event.Event{e}, &recorderStub{})

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, 0, adapter.Remote.Inserts())
		assert.Equal(t, 1, adapter.Remote.Updates())
		assert.Equal(t, 1, adapter.Remote.Count())
	})

	t.Run("should recreate remote copy that was deleted", func(t *testing.T) {
		c, adapter := setupConnector()
		e := manual("e1")
		e.Links = []event.SyncLink{{Provider: event.SourceGoogle, ExternalId: "remote-deleted", Status: event.SyncStatusSynced}}
		recorder := &recorderStub{}

		result, err := c.Push(context.Background(), Session{UserId: "u1"}, []event.Event{e}, recorder)

		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, 1, adapter.Remote.Inserts())
		assert.NotEqual(t, "remote-deleted", recorder.byEvent()["e1"].ExternalId)
	})

	t.Run("should ignore links of other providers", func(t *testing.T) {
		c, adapter := setupConnector()
		e := manual("e1")
		e.Links = []event.SyncLink{{Provider: event.SourceApple, ExternalId: "apple-1", Status: event.SyncStatusSynced}}

		_, err := c.Push(context.Background(), Session{UserId: "u1"}, []event.Event{e}, &recorderStub{})

		require.NoError(t, err)
		assert.Equal(t, 1, adapter.Remote.Inserts())
	})

	t.Run("should keep going after one event fails", func(t *testing.T) {
		// given
		c, adapter := setupConnector()
		adapter.Remote.InsertHook = func(ctx context.Context, e event.Event) error {
			if e.Id == "bad" {
				return HTTPStatusError(400, errors.New("invalid event"))
			}
			return nil
		}
		recorder := &recorderStub{}

		// when
		result, err := c.Push(context.Background(), Session{UserId: "u1"},
			[]event.Event{manual("good-1"), manual("bad"), manual("good-2")}, recorder)

		// then
		require.NoError(t, err)
		assert.Equal(t, 2, result.Synced)
		assert.Equal(t, 1, result.Failed)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "bad", result.Errors[0].EventId)
		assert.ErrorIs(t, result.Errors[0].Err, ErrExternalService)
		assert.Equal(t, event.SyncStatusFailed, recorder.byEvent()["bad"].Status)
		assert.Equal(t, event.SyncStatusSynced, recorder.byEvent()["good-2"].Status)
	})

	t.Run("should retry transient failures up to the attempt limit", func(t *testing.T) {
		c, adapter := setupConnector()
		calls := 0
		adapter.Remote.InsertHook = func(ctx context.Context, e event.Event) error {
			calls++
			if calls < 3 {
				return HTTPStatusError(503, errors.New("unavailable"))
			}
			return nil
		}

		result, err := c.Push(context.Background(), Session{UserId: "u1"}, []event.Event{manual("e1")}, &recorderStub{})

		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, 3, calls)
	})

	t.Run("should not retry auth failures", func(t *testing.T) {
		c, adapter := setupConnector()
		calls := 0
		adapter.Remote.InsertHook = func(ctx context.Context, e event.Event) error {
			calls++
			return HTTPStatusError(401, errors.New("invalid token"))
		}

		result, err := c.Push(context.Background(), Session{UserId: "u1"}, []event.Event{manual("e1")}, &recorderStub{})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1, result.Failed)
		assert.ErrorIs(t, result.Errors[0].Err, ErrProviderAuth)
	})

	t.Run("should leave unconfirmed events pending when cancelled", func(t *testing.T) {
		// given
		c, adapter := setupConnector()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		adapter.Remote.InsertHook = func(ctx context.Context, e event.Event) error {
			if e.Id == "e2" {
				cancel()
				return ctx.Err()
			}
			return nil
		}
		recorder := &recorderStub{}

		// when
		result, err := c.Push(ctx, Session{UserId: "u1"}, []event.Event{manual("e1"), manual("e2"), manual("e3")}, recorder)

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, 2, result.Pending)
		outcomes := recorder.byEvent()
		assert.Equal(t, event.SyncStatusSynced, outcomes["e1"].Status)
		assert.Equal(t, event.SyncStatusPending, outcomes["e2"].Status)
		assert.Equal(t, event.SyncStatusPending, outcomes["e3"].Status)
	})

	t.Run("should skip non manual events", func(t *testing.T) {
		c, adapter := setupConnector()
		imported := manual("g1")
		imported.Source = event.SourceGoogle

		result, err := c.Push(context.Background(), Session{UserId: "u1"}, []event.Event{imported}, &recorderStub{})

		require.NoError(t, err)
		assert.Equal(t, PushResult{}, result)
		assert.Equal(t, 0, adapter.Remote.Count())
	})

	t.Run("should fail whole push when provider cannot be opened", func(t *testing.T) {
		c, adapter := setupConnector()
		adapter.OpenErr = errors.New("dial tcp: connection refused")

		_, err := c.Push(context.Background(), Session{UserId: "u1"}, []event.Event{manual("e1")}, &recorderStub{})

		assert.ErrorIs(t, err, ErrExternalService)
	})

	t.Run("should abort when outcome cannot be stored", func(t *testing.T) {
		c, _ := setupConnector()
		storeErr := errors.New("store down")

		_, err := c.Push(context.Background(), Session{UserId: "u1"},
			[]event.Event{manual("e1"), manual("e2")}, &recorderStub{err: storeErr})

		assert.ErrorIs(t, err, storeErr)
	})
}

func TestConnector_Pull(t *testing.T) {
	t.Run("should tag pulled events with provider and owner", func(t *testing.T) {
		c, adapter := setupConnector()
		adapter.Remote.Put("g-1", event.Event{Title: "Lecture"})

		items, err := c.Pull(context.Background(), Session{UserId: "u1"})

		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, event.SourceGoogle, items[0].Event.Source)
		assert.Equal(t, "g-1", items[0].Event.ExternalId)
		assert.Equal(t, "u1", items[0].Event.UserId)
		assert.Empty(t, items[0].Event.Id)
	})

	t.Run("should report list failure as external service failure", func(t *testing.T) {
		c, adapter := setupConnector()
		adapter.Remote.ListErr = HTTPStatusError(500, errors.New("boom"))

		_, err := c.Pull(context.Background(), Session{UserId: "u1"})

		assert.ErrorIs(t, err, ErrExternalService)
	})
}

func TestConnector_Connect(t *testing.T) {
	t.Run("should reject google credentials without refresh token", func(t *testing.T) {
		c, _ := setupConnector()

		_, err := c.Connect(Credentials{AccessToken: "a"})

		assert.ErrorIs(t, err, ErrMissingCredentials)
	})
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("Google")
	require.NoError(t, err)
	assert.Equal(t, Google, p)

	_, err = ParseProvider("outlook")
	assert.ErrorIs(t, err, ErrInvalidProvider)
}

func TestCredentials_String(t *testing.T) {
	creds := Credentials{AccessToken: "secret-token", Password: "hunter2"}

	assert.NotContains(t, creds.String(), "secret-token")
	assert.NotContains(t, creds.GoString(), "hunter2")
}

func TestHTTPStatusError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{401, ErrProviderAuth},
		{403, ErrProviderAuth},
		{404, ErrRemoteGone},
		{410, ErrRemoteGone},
		{429, ErrTransient},
		{503, ErrTransient},
		{400, ErrExternalService},
	}
	for _, tt := range tests {
		err := HTTPStatusError(tt.status, errors.New("x"))
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		assert.ErrorIs(t, err, ErrExternalService, "status %d", tt.status)
	}
}
