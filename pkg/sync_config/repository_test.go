package sync_config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/campusflow/campusflow/internal/test_utils"
	"github.com/campusflow/campusflow/pkg/connector"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/sync/errgroup"
)

var pgContainer *postgres.PostgresContainer
var openDb func() *pgxpool.Pool

func TestMain(m *testing.M) {
	pgContainer, openDb = test_utils.TestWithDB()
	code := m.Run()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Errorf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func setupTestRepository(t *testing.T) (context.Context, *RepositoryImpl) {
	ctx := context.Background()
	db := openDb()
	t.Cleanup(func() {
		db.Close()
		require.NoError(t, pgContainer.Restore(ctx))
	})
	return ctx, NewRepository(db)
}

func TestRepositoryImpl_Config(t *testing.T) {
	t.Run("should create config once and keep existing one", func(t *testing.T) {
		// given
		ctx, repo := setupTestRepository(t)
		_, err := repo.GetConfig(ctx, "u1")
		assert.ErrorIs(t, err, ErrConfigNotFound)

		// when
		first, err := repo.CreateConfig(ctx, DefaultConfig("u1"))
		require.NoError(t, err)
		hourly := Hourly
		meals := true
		_, err = repo.UpdatePreferences(ctx, "u1", Patch{EventSources: &EventSourcesPatch{Meals: &meals}, SyncFrequency: &hourly})
		require.NoError(t, err)
		second, err := repo.CreateConfig(ctx, DefaultConfig("u1"))

		// then
		require.NoError(t, err)
		assert.Equal(t, Daily, first.SyncFrequency)
		assert.Equal(t, Hourly, second.SyncFrequency)
		assert.True(t, second.EventSources.Meals)
	})

	t.Run("should keep both of two concurrent partial updates", func(t *testing.T) {
		// given
		ctx, repo := setupTestRepository(t)
		_, err := repo.CreateConfig(ctx, DefaultConfig("u1"))
		require.NoError(t, err)
		on := true
		hourly := Hourly
		patches := []Patch{
			{EventSources: &EventSourcesPatch{Workouts: &on}},
			{EventSources: &EventSourcesPatch{Assignments: &on}},
			{SyncFrequency: &hourly},
			{EventSources: &EventSourcesPatch{Sleep: &on}},
		}

		// when
		var g errgroup.Group
		for _, patch := range patches {
			g.Go(func() error {
				_, err := repo.UpdatePreferences(ctx, "u1", patch)
				return err
			})
		}
		require.NoError(t, g.Wait())

		// then
		cfg, err := repo.GetConfig(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, EventSources{Assignments: true, Workouts: true, Meals: false, Sleep: true}, cfg.EventSources)
		assert.Equal(t, Hourly, cfg.SyncFrequency)
	})

	t.Run("should report missing config on update", func(t *testing.T) {
		ctx, repo := setupTestRepository(t)
		on := true

		_, err := repo.UpdatePreferences(ctx, "nobody", Patch{EventSources: &EventSourcesPatch{Meals: &on}})

		assert.ErrorIs(t, err, ErrConfigNotFound)
	})

	t.Run("should save and remove connection atomically", func(t *testing.T) {
		ctx, repo := setupTestRepository(t)
		_, err := repo.CreateConfig(ctx, DefaultConfig("u1"))
		require.NoError(t, err)
		at := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)

		err = repo.SaveConnection(ctx, "u1", connector.Apple,
			connector.Connection{ServerUrl: "https://dav.example.com", CalendarName: "Campus"}, []byte("sealed"), at)
		require.NoError(t, err)

		cfg, _ := repo.GetConfig(ctx, "u1")
		assert.True(t, cfg.AppleCalendar.Connected)
		assert.Equal(t, "Campus", cfg.AppleCalendar.CalendarName)
		sealed, err := repo.GetCredentials(ctx, "u1", connector.Apple)
		require.NoError(t, err)
		assert.Equal(t, []byte("sealed"), sealed)

		require.NoError(t, repo.RemoveConnection(ctx, "u1", connector.Apple))
		cfg, _ = repo.GetConfig(ctx, "u1")
		assert.False(t, cfg.AppleCalendar.Connected)
		_, err = repo.GetCredentials(ctx, "u1", connector.Apple)
		assert.ErrorIs(t, err, ErrCredentialsNotFound)
	})

	t.Run("should not store credentials without config", func(t *testing.T) {
		ctx, repo := setupTestRepository(t)

		err := repo.SaveConnection(ctx, "ghost", connector.Google, connector.Connection{}, []byte("x"), time.Now())

		assert.ErrorIs(t, err, ErrConfigNotFound)
		_, err = repo.GetCredentials(ctx, "ghost", connector.Google)
		assert.ErrorIs(t, err, ErrCredentialsNotFound)
	})

	t.Run("should mark last sync and list by frequency", func(t *testing.T) {
		ctx, repo := setupTestRepository(t)
		_, _ = repo.CreateConfig(ctx, DefaultConfig("u1"))
		_, _ = repo.CreateConfig(ctx, DefaultConfig("u2"))
		require.NoError(t, repo.SaveConnection(ctx, "u1", connector.Google, connector.Connection{CalendarId: "primary"}, []byte("x"), time.Now()))
		at := time.Date(2025, 11, 2, 7, 0, 0, 0, time.UTC)

		require.NoError(t, repo.MarkSynced(ctx, "u1", connector.Google, at))
		configs, err := repo.ListByFrequency(ctx, Daily)

		require.NoError(t, err)
		require.Len(t, configs, 1)
		assert.Equal(t, "u1", configs[0].UserId)
		require.NotNil(t, configs[0].GoogleCalendar.LastSync)
		assert.True(t, at.Equal(*configs[0].GoogleCalendar.LastSync))
	})
}
