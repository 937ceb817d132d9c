package calendar_sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/campusflow/campusflow/internal/database"
	"github.com/campusflow/campusflow/internal/utils"
	"github.com/campusflow/campusflow/pkg/connector"
	"github.com/campusflow/campusflow/pkg/event"
	"github.com/campusflow/campusflow/pkg/sync_config"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userId = "user-123"

var googleCreds = connector.Credentials{AccessToken: "access", RefreshToken: "refresh"}

type fixture struct {
	orchestrator *Orchestrator
	events       *event.RepositoryStub
	configs      *sync_config.ServiceImpl
	google       *connector.StubAdapter
	apple        *connector.StubAdapter
	clock        *utils.MockClock
}

func setup(t *testing.T) fixture {
	events := event.NewRepositoryStub()
	sealer, err := sync_config.NewSealer("")
	require.NoError(t, err)
	clock := &utils.MockClock{FixedNow: time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC)}
	configs := sync_config.NewService(sync_config.NewRepositoryStub(), sealer, clock)
	google := connector.NewStubAdapter(connector.Google)
	apple := connector.NewStubAdapter(connector.Apple)
	retry := connector.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	o := NewOrchestrator(configs, events, clock, connector.New(google, retry, clock), connector.New(apple, retry, clock))
	return fixture{orchestrator: o, events: events, configs: configs, google: google, apple: apple, clock: clock}
}

func (f fixture) addManual(title string, day int) event.Event {
	e := event.Event{
		Id:       uuid.NewString(),
		UserId:   userId,
		Title:    title,
		Date:     civil.Date{Year: 2025, Month: 11, Day: day},
		Category: event.CategoryAcademic,
		Source:   event.SourceManual,
	}
	f.events.Put(e)
	return e
}

func (f fixture) connectGoogle(t *testing.T) {
	require.NoError(t, f.orchestrator.Connect(context.Background(), userId, connector.Google, googleCreds))
}

func (f fixture) link(t *testing.T, eventId string, provider event.Source) event.SyncLink {
	e, err := f.events.GetEvent(context.Background(), eventId)
	require.NoError(t, err)
	link, ok := e.Link(provider)
	require.True(t, ok, "no %s link on %s", provider, eventId)
	return link
}

func TestOrchestrator_Connect(t *testing.T) {
	t.Run("should reject google credentials without refresh token", func(t *testing.T) {
		// given
		f := setup(t)

		// when
		err := f.orchestrator.Connect(context.Background(), userId, connector.Google, connector.Credentials{AccessToken: "access"})

		// then
		assert.ErrorIs(t, err, connector.ErrMissingCredentials)
		cfg, err := f.configs.GetSyncConfig(context.Background(), userId)
		require.NoError(t, err)
		assert.False(t, cfg.GoogleCalendar.Connected)
	})

	t.Run("should mark provider connected", func(t *testing.T) {
		f := setup(t)

		f.connectGoogle(t)

		cfg, _ := f.configs.GetSyncConfig(context.Background(), userId)
		assert.True(t, cfg.GoogleCalendar.Connected)
		assert.Equal(t, "primary", cfg.GoogleCalendar.CalendarId)
		assert.False(t, cfg.AppleCalendar.Connected)
	})
}

func TestOrchestrator_PushEvents(t *testing.T) {
	t.Run("should return zero when user has no manual events", func(t *testing.T) {
		f := setup(t)
		f.connectGoogle(t)

		result, err := f.orchestrator.PushEvents(context.Background(), userId, connector.Google)

		require.NoError(t, err)
		assert.Equal(t, PushResult{}, result)
	})

	t.Run("should fail when provider is not connected and there is nothing to push", func(t *testing.T) {
		f := setup(t)

		result, err := f.orchestrator.PushEvents(context.Background(), userId, connector.Google)

		assert.ErrorIs(t, err, connector.ErrNotConnected)
		assert.Equal(t, PushResult{}, result)
	})

	t.Run("should fail when provider is not connected", func(t *testing.T) {
		f := setup(t)
		f.addManual("Midterm", 1)

		_, err := f.orchestrator.PushEvents(context.Background(), userId, connector.Apple)

		assert.ErrorIs(t, err, connector.ErrNotConnected)
	})

	t.Run("should not create duplicates when pushed twice", func(t *testing.T) {
		// given
		f := setup(t)
		f.connectGoogle(t)
		midterm := f.addManual("Midterm", 1)
		f.addManual("Essay", 2)
		imported := event.Event{Id: uuid.NewString(), UserId: userId, Title: "Dentist", Date: civil.Date{Year: 2025, Month: 11, Day: 3},
			Category: event.CategoryPersonal, Source: event.SourceGoogle, ExternalId: "g-9"}
		f.events.Put(imported)

		// when
		first, err := f.orchestrator.PushEvents(context.Background(), userId, connector.Google)
		require.NoError(t, err)
		f.clock.Advance(time.Hour)
		second, err := f.orchestrator.PushEvents(context.Background(), userId, connector.Google)
		require.NoError(t, err)

		// then
		assert.Equal(t, 2, first.Synced)
		assert.Equal(t, 2, second.Synced)
		assert.Equal(t, 2, f.google.Remote.Count())
		assert.Equal(t, 2, f.google.Remote.Inserts())
		assert.Equal(t, 2, f.google.Remote.Updates())
		link := f.link(t, midterm.Id, event.SourceGoogle)
		assert.Equal(t, event.SyncStatusSynced, link.Status)
		assert.NotEmpty(t, link.ExternalId)
		cfg, _ := f.configs.GetSyncConfig(context.Background(), userId)
		require.NotNil(t, cfg.GoogleCalendar.LastSync)
		assert.True(t, f.clock.Now().Equal(*cfg.GoogleCalendar.LastSync))
	})

	t.Run("should keep going after one event fails", func(t *testing.T) {
		// given
		f := setup(t)
		f.connectGoogle(t)
		good := f.addManual("Midterm", 1)
		bad := f.addManual("Rejected", 2)
		other := f.addManual("Essay", 3)
		f.google.Remote.InsertHook = func(ctx context.Context, e event.Event) error {
			if e.Id == bad.Id {
				return connector.External(errors.New("event rejected"))
			}
			return nil
		}

		// when
		result, err := f.orchestrator.PushEvents(context.Background(), userId, connector.Google)

		// then
		require.NoError(t, err)
		assert.Equal(t, 2, result.Synced)
		assert.Equal(t, 1, result.Failed)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, bad.Id, result.Errors[0].EventId)
		assert.Equal(t, event.SyncStatusSynced, f.link(t, good.Id, event.SourceGoogle).Status)
		assert.Equal(t, event.SyncStatusSynced, f.link(t, other.Id, event.SourceGoogle).Status)
		failed := f.link(t, bad.Id, event.SourceGoogle)
		assert.Equal(t, event.SyncStatusFailed, failed.Status)
		assert.Contains(t, failed.LastError, "event rejected")
	})

	t.Run("should leave unconfirmed events pending when cancelled", func(t *testing.T) {
		// given
		f := setup(t)
		f.connectGoogle(t)
		first := f.addManual("First", 1)
		second := f.addManual("Second", 2)
		third := f.addManual("Third", 3)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f.google.Remote.InsertHook = func(ctx context.Context, e event.Event) error {
			if e.Id == second.Id {
				cancel()
				return ctx.Err()
			}
			return nil
		}

		// when
		result, err := f.orchestrator.PushEvents(ctx, userId, connector.Google)

		// then
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, 2, result.Pending)
		assert.Equal(t, event.SyncStatusSynced, f.link(t, first.Id, event.SourceGoogle).Status)
		assert.Equal(t, event.SyncStatusPending, f.link(t, second.Id, event.SourceGoogle).Status)
		assert.Equal(t, event.SyncStatusPending, f.link(t, third.Id, event.SourceGoogle).Status)
		cfg, _ := f.configs.GetSyncConfig(context.Background(), userId)
		assert.Nil(t, cfg.GoogleCalendar.LastSync)
	})

	t.Run("should serialize concurrent pushes for the same provider", func(t *testing.T) {
		// given
		f := setup(t)
		f.connectGoogle(t)
		f.addManual("Midterm", 1)
		f.addManual("Essay", 2)
		f.google.Remote.InsertHook = func(ctx context.Context, e event.Event) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		}

		// when
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.orchestrator.PushEvents(context.Background(), userId, connector.Google)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		// then
		assert.Equal(t, 2, f.google.Remote.Count())
		assert.Equal(t, 2, f.google.Remote.Inserts())
		assert.Zero(t, f.orchestrator.locks.size())
	})

	t.Run("should reject unknown provider", func(t *testing.T) {
		f := setup(t)

		_, err := f.orchestrator.PushEvents(context.Background(), userId, connector.Provider("outlook"))

		assert.ErrorIs(t, err, connector.ErrInvalidProvider)
	})
}

func TestOrchestrator_PullEvents(t *testing.T) {
	t.Run("should import remote events once and update them in place", func(t *testing.T) {
		// given
		f := setup(t)
		f.connectGoogle(t)
		f.google.Remote.Put("g-1", event.Event{Title: "Dentist", Date: civil.Date{Year: 2025, Month: 11, Day: 4}, Category: event.CategoryPersonal})
		f.google.Remote.Put("g-2", event.Event{Title: "Concert", Date: civil.Date{Year: 2025, Month: 11, Day: 8},
			Time: &civil.Time{Hour: 20, Minute: 0}, Category: event.CategoryPersonal})

		// when
		first, err := f.orchestrator.PullEvents(context.Background(), userId, connector.Google)
		require.NoError(t, err)
		second, err := f.orchestrator.PullEvents(context.Background(), userId, connector.Google)
		require.NoError(t, err)

		// then
		assert.Equal(t, 2, first.Created)
		assert.Equal(t, 2, first.Pulled())
		assert.Zero(t, second.Created)
		assert.Equal(t, 2, second.Unchanged)
		imported, err := f.events.FindEvents(context.Background(), userId, event.Query{Sources: []event.Source{event.SourceGoogle}})
		require.NoError(t, err)
		require.Len(t, imported, 2)
		assert.Equal(t, "g-1", imported[0].ExternalId)
		assert.Equal(t, event.SyncStatusSynced, imported[0].SyncStatus)
		assert.True(t, f.clock.Now().Equal(imported[0].CreatedAt))

		// when the event changes at the provider
		f.clock.Advance(time.Hour)
		f.google.Remote.Put("g-1", event.Event{Title: "Dentist (moved)", Date: civil.Date{Year: 2025, Month: 11, Day: 5}, Category: event.CategoryPersonal})
		third, err := f.orchestrator.PullEvents(context.Background(), userId, connector.Google)
		require.NoError(t, err)

		// then
		assert.Equal(t, 1, third.Updated)
		moved, err := f.events.FindByExternalId(context.Background(), userId, event.SourceGoogle, "g-1")
		require.NoError(t, err)
		assert.Equal(t, imported[0].Id, moved.Id)
		assert.Equal(t, "Dentist (moved)", moved.Title)
		assert.True(t, f.clock.Now().Equal(moved.UpdatedAt))
		all, _ := f.events.FindEvents(context.Background(), userId, event.Query{})
		assert.Len(t, all, 2)
	})

	t.Run("should keep importing when one event is rejected by the store", func(t *testing.T) {
		// given
		f := setup(t)
		f.connectGoogle(t)
		f.google.Remote.Put("g-1", event.Event{Title: "Dentist", Date: civil.Date{Year: 2025, Month: 11, Day: 4}, Category: event.CategoryPersonal})
		f.google.Remote.Put("g-2", event.Event{Title: "Rejected", Date: civil.Date{Year: 2025, Month: 11, Day: 5}, Category: event.CategoryPersonal})
		f.google.Remote.Put("g-3", event.Event{Title: "Concert", Date: civil.Date{Year: 2025, Month: 11, Day: 8}, Category: event.CategoryPersonal})
		f.events.StoreHook = func(e event.Event) error {
			if e.Title == "Rejected" {
				return database.StoreError("could not insert event", &pgconn.PgError{Code: "22001", Message: "value too long"})
			}
			return nil
		}

		// when
		result, err := f.orchestrator.PullEvents(context.Background(), userId, connector.Google)

		// then
		require.NoError(t, err)
		assert.Equal(t, 2, result.Created)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "g-2", result.Errors[0].EventId)
		cfg, _ := f.configs.GetSyncConfig(context.Background(), userId)
		assert.NotNil(t, cfg.GoogleCalendar.LastSync)
	})

	t.Run("should stop importing when the store is unavailable", func(t *testing.T) {
		// given
		f := setup(t)
		f.connectGoogle(t)
		f.google.Remote.Put("g-1", event.Event{Title: "Dentist", Date: civil.Date{Year: 2025, Month: 11, Day: 4}, Category: event.CategoryPersonal})
		f.google.Remote.Put("g-2", event.Event{Title: "Concert", Date: civil.Date{Year: 2025, Month: 11, Day: 8}, Category: event.CategoryPersonal})
		f.events.StoreHook = func(e event.Event) error {
			return database.StoreError("could not insert event", &pgconn.PgError{Code: "57P01", Message: "terminating connection due to administrator command"})
		}

		// when
		result, err := f.orchestrator.PullEvents(context.Background(), userId, connector.Google)

		// then
		assert.ErrorIs(t, err, database.ErrStoreUnavailable)
		assert.Zero(t, result.Created)
		assert.Empty(t, result.Errors)
	})

	t.Run("should skip remote copies of pushed events", func(t *testing.T) {
		// given
		f := setup(t)
		f.connectGoogle(t)
		f.addManual("Midterm", 1)
		_, err := f.orchestrator.PushEvents(context.Background(), userId, connector.Google)
		require.NoError(t, err)

		// when
		result, err := f.orchestrator.PullEvents(context.Background(), userId, connector.Google)

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, result.Skipped)
		assert.Zero(t, result.Pulled())
		all, _ := f.events.FindEvents(context.Background(), userId, event.Query{})
		assert.Len(t, all, 1)
	})

	t.Run("should surface provider failure", func(t *testing.T) {
		f := setup(t)
		f.connectGoogle(t)
		f.google.Remote.ListErr = connector.HTTPStatusError(401, errors.New("token expired"))

		_, err := f.orchestrator.PullEvents(context.Background(), userId, connector.Google)

		assert.ErrorIs(t, err, connector.ErrExternalService)
		cfg, _ := f.configs.GetSyncConfig(context.Background(), userId)
		assert.Nil(t, cfg.GoogleCalendar.LastSync)
	})

	t.Run("should fail when provider is not connected", func(t *testing.T) {
		f := setup(t)

		_, err := f.orchestrator.PullEvents(context.Background(), userId, connector.Google)

		assert.ErrorIs(t, err, connector.ErrNotConnected)
	})
}

func TestOrchestrator_Disconnect(t *testing.T) {
	t.Run("should revoke credentials and forget sync links", func(t *testing.T) {
		// given
		f := setup(t)
		f.connectGoogle(t)
		midterm := f.addManual("Midterm", 1)
		_, err := f.orchestrator.PushEvents(context.Background(), userId, connector.Google)
		require.NoError(t, err)

		// when
		err = f.orchestrator.Disconnect(context.Background(), userId, connector.Google)

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, f.google.Revoked())
		e, _ := f.events.GetEvent(context.Background(), midterm.Id)
		assert.Empty(t, e.Links)
		cfg, _ := f.configs.GetSyncConfig(context.Background(), userId)
		assert.False(t, cfg.GoogleCalendar.Connected)
		_, err = f.orchestrator.PushEvents(context.Background(), userId, connector.Google)
		assert.ErrorIs(t, err, connector.ErrNotConnected)
	})

	t.Run("should disconnect even when revocation fails", func(t *testing.T) {
		f := setup(t)
		f.connectGoogle(t)
		f.google.RevokeErr = connector.External(errors.New("revocation endpoint down"))

		err := f.orchestrator.Disconnect(context.Background(), userId, connector.Google)

		require.NoError(t, err)
		cfg, _ := f.configs.GetSyncConfig(context.Background(), userId)
		assert.False(t, cfg.GoogleCalendar.Connected)
	})

	t.Run("should succeed when provider was never connected", func(t *testing.T) {
		f := setup(t)

		err := f.orchestrator.Disconnect(context.Background(), userId, connector.Apple)

		require.NoError(t, err)
		assert.Zero(t, f.apple.Revoked())
	})
}
