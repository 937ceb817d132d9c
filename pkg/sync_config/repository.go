package sync_config

import (
	"context"
	"errors"
	"time"

	"github.com/campusflow/campusflow/internal/database"
	"github.com/campusflow/campusflow/pkg/connector"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	GetConfig(ctx context.Context, userId string) (CalendarSyncConfig, error)
	// CreateConfig inserts cfg unless the user already has one, and returns the stored config.
	CreateConfig(ctx context.Context, cfg CalendarSyncConfig) (CalendarSyncConfig, error)
	// UpdatePreferences applies the set fields of patch in a single statement; unset fields keep
	// the stored value even when another update lands concurrently.
	UpdatePreferences(ctx context.Context, userId string, patch Patch) (CalendarSyncConfig, error)
	// SaveConnection stores sealed credentials and marks the provider connected in one transaction.
	SaveConnection(ctx context.Context, userId string, provider connector.Provider, conn connector.Connection, sealed []byte, at time.Time) error
	RemoveConnection(ctx context.Context, userId string, provider connector.Provider) error
	GetCredentials(ctx context.Context, userId string, provider connector.Provider) ([]byte, error)
	MarkSynced(ctx context.Context, userId string, provider connector.Provider, at time.Time) error
	ListByFrequency(ctx context.Context, frequency SyncFrequency) ([]CalendarSyncConfig, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const configColumns = `user_id, source_assignments, source_workouts, source_meals, source_sleep, sync_frequency,
	google_connected, google_calendar_id, google_last_sync, google_sync_enabled,
	apple_connected, apple_server_url, apple_calendar_name, apple_last_sync, apple_sync_enabled`

func (r *RepositoryImpl) GetConfig(ctx context.Context, userId string) (CalendarSyncConfig, error) {
	query := `SELECT ` + configColumns + ` FROM calendar_sync_config WHERE user_id = $1`
	cfg, err := scanConfig(r.db.QueryRow(ctx, query, userId))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CalendarSyncConfig{}, ErrConfigNotFound
		}
		err := database.StoreError("could not get sync config", err)
		log.Error(err)
		return CalendarSyncConfig{}, err
	}
	return cfg, nil
}

func (r *RepositoryImpl) CreateConfig(ctx context.Context, cfg CalendarSyncConfig) (CalendarSyncConfig, error) {
	query := `INSERT INTO calendar_sync_config (user_id, source_assignments, source_workouts, source_meals, source_sleep, sync_frequency)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (user_id) DO NOTHING`
	_, err := r.db.Exec(ctx, query, cfg.UserId, cfg.EventSources.Assignments, cfg.EventSources.Workouts,
		cfg.EventSources.Meals, cfg.EventSources.Sleep, string(cfg.SyncFrequency))
	if err != nil {
		err := database.StoreError("could not create sync config", err)
		log.Error(err)
		return CalendarSyncConfig{}, err
	}
	return r.GetConfig(ctx, cfg.UserId)
}

func (r *RepositoryImpl) UpdatePreferences(ctx context.Context, userId string, patch Patch) (CalendarSyncConfig, error) {
	var sources EventSourcesPatch
	if patch.EventSources != nil {
		sources = *patch.EventSources
	}
	var frequency *string
	if patch.SyncFrequency != nil {
		f := string(*patch.SyncFrequency)
		frequency = &f
	}
	query := `UPDATE calendar_sync_config
			  SET source_assignments = COALESCE($1::boolean, source_assignments),
			      source_workouts    = COALESCE($2::boolean, source_workouts),
			      source_meals       = COALESCE($3::boolean, source_meals),
			      source_sleep       = COALESCE($4::boolean, source_sleep),
			      sync_frequency     = COALESCE($5::text, sync_frequency)
			  WHERE user_id = $6
			  RETURNING ` + configColumns
	cfg, err := scanConfig(r.db.QueryRow(ctx, query, sources.Assignments, sources.Workouts, sources.Meals, sources.Sleep,
		frequency, userId))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CalendarSyncConfig{}, ErrConfigNotFound
		}
		err := database.StoreError("could not update sync config", err)
		log.Error(err)
		return CalendarSyncConfig{}, err
	}
	return cfg, nil
}

func (r *RepositoryImpl) SaveConnection(ctx context.Context, userId string, provider connector.Provider, conn connector.Connection, sealed []byte, at time.Time) error {
	return r.inTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO calendar_sync_credential (user_id, provider, sealed, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, provider) DO UPDATE SET sealed = excluded.sealed, updated_at = excluded.updated_at`,
			userId, string(provider), sealed, at)
		if err != nil {
			return database.StoreError("could not store credentials", err)
		}

		var tag pgconn.CommandTag
		switch provider {
		case connector.Google:
			tag, err = tx.Exec(ctx, `UPDATE calendar_sync_config
				SET google_connected = TRUE, google_sync_enabled = TRUE, google_calendar_id = $1
				WHERE user_id = $2`, conn.CalendarId, userId)
		case connector.Apple:
			tag, err = tx.Exec(ctx, `UPDATE calendar_sync_config
				SET apple_connected = TRUE, apple_sync_enabled = TRUE, apple_server_url = $1, apple_calendar_name = $2
				WHERE user_id = $3`, conn.ServerUrl, conn.CalendarName, userId)
		default:
			return connector.ErrInvalidProvider
		}
		if err != nil {
			return database.StoreError("could not mark provider connected", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConfigNotFound
		}
		return nil
	})
}

func (r *RepositoryImpl) RemoveConnection(ctx context.Context, userId string, provider connector.Provider) error {
	return r.inTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM calendar_sync_credential WHERE user_id = $1 AND provider = $2`,
			userId, string(provider))
		if err != nil {
			return database.StoreError("could not delete credentials", err)
		}

		switch provider {
		case connector.Google:
			_, err = tx.Exec(ctx, `UPDATE calendar_sync_config
				SET google_connected = FALSE, google_sync_enabled = FALSE WHERE user_id = $1`, userId)
		case connector.Apple:
			_, err = tx.Exec(ctx, `UPDATE calendar_sync_config
				SET apple_connected = FALSE, apple_sync_enabled = FALSE WHERE user_id = $1`, userId)
		default:
			return connector.ErrInvalidProvider
		}
		if err != nil {
			return database.StoreError("could not mark provider disconnected", err)
		}
		return nil
	})
}

func (r *RepositoryImpl) GetCredentials(ctx context.Context, userId string, provider connector.Provider) ([]byte, error) {
	var sealed []byte
	err := r.db.QueryRow(ctx, `SELECT sealed FROM calendar_sync_credential WHERE user_id = $1 AND provider = $2`,
		userId, string(provider)).Scan(&sealed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialsNotFound
		}
		err := database.StoreError("could not get credentials", err)
		log.Error(err)
		return nil, err
	}
	return sealed, nil
}

func (r *RepositoryImpl) MarkSynced(ctx context.Context, userId string, provider connector.Provider, at time.Time) error {
	var query string
	switch provider {
	case connector.Google:
		query = `UPDATE calendar_sync_config SET google_last_sync = $1 WHERE user_id = $2`
	case connector.Apple:
		query = `UPDATE calendar_sync_config SET apple_last_sync = $1 WHERE user_id = $2`
	default:
		return connector.ErrInvalidProvider
	}
	if _, err := r.db.Exec(ctx, query, at, userId); err != nil {
		err := database.StoreError("could not update last sync", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) ListByFrequency(ctx context.Context, frequency SyncFrequency) ([]CalendarSyncConfig, error) {
	query := `SELECT ` + configColumns + ` FROM calendar_sync_config
			  WHERE sync_frequency = $1 AND (google_connected OR apple_connected)
			  ORDER BY user_id`
	rows, err := r.db.Query(ctx, query, string(frequency))
	if err != nil {
		err := database.StoreError("could not list sync configs", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	configs := make([]CalendarSyncConfig, 0, 10)
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			err := database.StoreError("could not scan sync config", err)
			log.Error(err)
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, database.StoreError("could not list sync configs", err)
	}
	return configs, nil
}

func (r *RepositoryImpl) inTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return database.StoreError("begin transaction", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	if err := fn(tx); err != nil {
		log.Error(err)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return database.StoreError("commit transaction", err)
	}
	return nil
}

func scanConfig(row pgx.Row) (CalendarSyncConfig, error) {
	var cfg CalendarSyncConfig
	var frequency string
	err := row.Scan(
		&cfg.UserId,
		&cfg.EventSources.Assignments,
		&cfg.EventSources.Workouts,
		&cfg.EventSources.Meals,
		&cfg.EventSources.Sleep,
		&frequency,
		&cfg.GoogleCalendar.Connected,
		&cfg.GoogleCalendar.CalendarId,
		&cfg.GoogleCalendar.LastSync,
		&cfg.GoogleCalendar.SyncEnabled,
		&cfg.AppleCalendar.Connected,
		&cfg.AppleCalendar.ServerUrl,
		&cfg.AppleCalendar.CalendarName,
		&cfg.AppleCalendar.LastSync,
		&cfg.AppleCalendar.SyncEnabled,
	)
	cfg.SyncFrequency = SyncFrequency(frequency)
	return cfg, err
}

var _ Repository = (*RepositoryImpl)(nil)
