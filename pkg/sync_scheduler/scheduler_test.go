package sync_scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/campusflow/campusflow/internal/config"
	"github.com/campusflow/campusflow/internal/event_bus"
	"github.com/campusflow/campusflow/internal/utils"
	"github.com/campusflow/campusflow/pkg/calendar_sync"
	"github.com/campusflow/campusflow/pkg/connector"
	"github.com/campusflow/campusflow/pkg/sync_config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op       string
	userId   string
	provider connector.Provider
}

type syncerStub struct {
	mu      sync.Mutex
	calls   []call
	pushErr error
}

func (s *syncerStub) PushEvents(ctx context.Context, userId string, provider connector.Provider) (calendar_sync.PushResult, error) {
	s.record("push", userId, provider)
	return calendar_sync.PushResult{}, s.pushErr
}

func (s *syncerStub) PullEvents(ctx context.Context, userId string, provider connector.Provider) (calendar_sync.PullResult, error) {
	s.record("pull", userId, provider)
	return calendar_sync.PullResult{}, nil
}

func (s *syncerStub) record(op string, userId string, provider connector.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{op, userId, provider})
}

func (s *syncerStub) recorded() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

type fixture struct {
	scheduler *Scheduler
	configs   *sync_config.ServiceImpl
	syncer    *syncerStub
	bus       *event_bus.EventBus
}

func setup(t *testing.T) fixture {
	sealer, err := sync_config.NewSealer("")
	require.NoError(t, err)
	clock := &utils.MockClock{FixedNow: time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC)}
	configs := sync_config.NewService(sync_config.NewRepositoryStub(), sealer, clock)
	syncer := &syncerStub{}
	bus := event_bus.NewEventBus()

	cfg := config.Defaults()
	cfg.Scheduler.Enabled = true
	cfg.Sync.OperationTimeout = time.Second
	return fixture{scheduler: New(cfg, configs, syncer, bus), configs: configs, syncer: syncer, bus: bus}
}

func (f fixture) user(t *testing.T, userId string, frequency sync_config.SyncFrequency, providers ...connector.Provider) {
	ctx := context.Background()
	_, err := f.configs.UpdateSyncConfig(ctx, userId, sync_config.Patch{SyncFrequency: &frequency})
	require.NoError(t, err)
	for _, p := range providers {
		creds := connector.Credentials{AccessToken: "a", RefreshToken: "r", ServerUrl: "https://dav.example.com/", Username: "u", Password: "p"}
		require.NoError(t, f.configs.Connect(ctx, userId, p, creds, connector.Connection{}))
	}
}

func (f fixture) publish(t *testing.T, userId string) {
	err := f.bus.Publish(event_bus.NewEvent(context.Background(), event_bus.CalendarEventChangedType,
		event_bus.CalendarEventChanged{UserId: userId, EventId: "e1", Kind: event_bus.EventCreated}))
	require.NoError(t, err)
}

func TestScheduler_RunFrequency(t *testing.T) {
	t.Run("should push then pull every connected provider of matching users", func(t *testing.T) {
		// given
		f := setup(t)
		f.user(t, "alice", sync_config.Hourly, connector.Google, connector.Apple)
		f.user(t, "bob", sync_config.Daily, connector.Google)

		// when
		f.scheduler.RunFrequency(context.Background(), sync_config.Hourly)

		// then
		assert.Equal(t, []call{
			{"push", "alice", connector.Google},
			{"pull", "alice", connector.Google},
			{"push", "alice", connector.Apple},
			{"pull", "alice", connector.Apple},
		}, f.syncer.recorded())
	})

	t.Run("should skip users without connected providers", func(t *testing.T) {
		f := setup(t)
		f.user(t, "carol", sync_config.Daily)

		f.scheduler.RunFrequency(context.Background(), sync_config.Daily)

		assert.Empty(t, f.syncer.recorded())
	})

	t.Run("should still pull when push fails", func(t *testing.T) {
		f := setup(t)
		f.user(t, "alice", sync_config.Daily, connector.Google)
		f.syncer.pushErr = errors.New("provider down")

		f.scheduler.RunFrequency(context.Background(), sync_config.Daily)

		assert.Equal(t, []call{
			{"push", "alice", connector.Google},
			{"pull", "alice", connector.Google},
		}, f.syncer.recorded())
	})
}

func TestScheduler_Realtime(t *testing.T) {
	t.Run("should push realtime user when an event changes", func(t *testing.T) {
		// given
		f := setup(t)
		f.user(t, "alice", sync_config.Realtime, connector.Apple)
		require.NoError(t, f.scheduler.Start())

		// when
		f.publish(t, "alice")
		f.scheduler.Stop(context.Background())

		// then
		assert.Equal(t, []call{{"push", "alice", connector.Apple}}, f.syncer.recorded())
	})

	t.Run("should ignore changes of users on other frequencies", func(t *testing.T) {
		f := setup(t)
		f.user(t, "bob", sync_config.Hourly, connector.Google)
		require.NoError(t, f.scheduler.Start())

		f.publish(t, "bob")
		f.scheduler.Stop(context.Background())

		assert.Empty(t, f.syncer.recorded())
	})

	t.Run("should not subscribe after stop", func(t *testing.T) {
		f := setup(t)
		f.user(t, "alice", sync_config.Realtime, connector.Google)
		require.NoError(t, f.scheduler.Start())
		f.scheduler.Stop(context.Background())

		f.publish(t, "alice")

		assert.Empty(t, f.syncer.recorded())
	})
}

func TestScheduler_Start(t *testing.T) {
	t.Run("should reject invalid cron spec", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Scheduler.Enabled = true
		cfg.Scheduler.Hourly = "every hour please"
		s := New(cfg, nil, &syncerStub{}, nil)

		err := s.Start()

		assert.Error(t, err)
	})

	t.Run("should do nothing when disabled", func(t *testing.T) {
		f := setup(t)
		f.scheduler.cfg.Enabled = false
		f.user(t, "alice", sync_config.Realtime, connector.Google)

		require.NoError(t, f.scheduler.Start())
		f.publish(t, "alice")
		f.scheduler.Stop(context.Background())

		assert.Empty(t, f.syncer.recorded())
	})
}
