package event

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/campusflow/campusflow/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// Query narrows FindEvents. From and To are inclusive; nil means unbounded.
type Query struct {
	From    *civil.Date
	To      *civil.Date
	Sources []Source
}

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	StoreEvent(ctx context.Context, event Event) (Event, error)
	// GetEvent looks an event up by id regardless of owner so callers can tell
	// a foreign event from a missing one.
	GetEvent(ctx context.Context, id string) (Event, error)
	UpdateEvent(ctx context.Context, event Event) (Event, error)
	DeleteEvent(ctx context.Context, userId string, id string) error
	FindEvents(ctx context.Context, userId string, query Query) ([]Event, error)
	FindByExternalId(ctx context.Context, userId string, source Source, externalId string) (Event, error)
	// MarkLinksPending creates or resets the link of every given event for provider to pending.
	MarkLinksPending(ctx context.Context, userId string, provider Source, eventIds []string) error
	SaveLink(ctx context.Context, userId string, eventId string, link SyncLink) error
	// HasLinkWithExternalId reports whether externalId is the pushed copy of one of our events.
	HasLinkWithExternalId(ctx context.Context, userId string, provider Source, externalId string) (bool, error)
	DeleteLinks(ctx context.Context, userId string, provider Source) (int, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
	tx pgx.Tx
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

// getQueryer returns the appropriate database interface for queries (either tx or db)
func (r *RepositoryImpl) getQueryer() interface {
	Exec(ctx context.Context, query string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) pgx.Row
} {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *RepositoryImpl) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return database.StoreError("begin transaction", err)
	}
	defer func() {
		// The Rollback will be a no-op if the transaction was already committed
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	txRepo := &RepositoryImpl{db: r.db, tx: tx}

	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return database.StoreError("commit transaction", err)
	}

	return nil
}

const eventColumns = `id::text, user_id, title, event_date, event_time, category, description, source,
	source_id, external_id, sync_status, created_at, updated_at`

func (r *RepositoryImpl) StoreEvent(ctx context.Context, event Event) (Event, error) {
	query := `INSERT INTO calendar_event (id, user_id, title, event_date, event_time, category, description,
                            source, source_id, external_id, sync_status, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	event.Id = uuid.New().String()
	_, err := r.getQueryer().Exec(ctx, query,
		event.Id,
		event.UserId,
		event.Title,
		toPgDate(event.Date),
		toPgTime(event.Time),
		string(event.Category),
		event.Description,
		string(event.Source),
		nullString(event.SourceId),
		nullString(event.ExternalId),
		nullString(string(event.SyncStatus)),
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		err := database.StoreError("could not insert calendar event", err)
		log.Error(err)
		return Event{}, err
	}
	return event, nil
}

func (r *RepositoryImpl) GetEvent(ctx context.Context, id string) (Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Event{}, ErrEventNotFound
	}
	query := `SELECT ` + eventColumns + ` FROM calendar_event WHERE id = $1`
	event, err := scanEvent(r.getQueryer().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrEventNotFound
		}
		err := database.StoreError("could not get calendar event", err)
		log.Error(err)
		return Event{}, err
	}
	if err := r.attachLinks(ctx, event.UserId, []*Event{&event}); err != nil {
		return Event{}, err
	}
	return event, nil
}

func (r *RepositoryImpl) UpdateEvent(ctx context.Context, event Event) (Event, error) {
	query := `UPDATE calendar_event
			  SET title = $1, event_date = $2, event_time = $3, category = $4, description = $5,
			      external_id = $6, sync_status = $7, updated_at = $8
			  WHERE id = $9 AND user_id = $10`

	tag, err := r.getQueryer().Exec(ctx, query,
		event.Title,
		toPgDate(event.Date),
		toPgTime(event.Time),
		string(event.Category),
		event.Description,
		nullString(event.ExternalId),
		nullString(string(event.SyncStatus)),
		event.UpdatedAt,
		event.Id,
		event.UserId,
	)
	if err != nil {
		err := database.StoreError("could not update calendar event", err)
		log.Error(err)
		return Event{}, err
	}
	if tag.RowsAffected() == 0 {
		return Event{}, ErrEventNotFound
	}
	return event, nil
}

func (r *RepositoryImpl) DeleteEvent(ctx context.Context, userId string, id string) error {
	tag, err := r.getQueryer().Exec(ctx, `DELETE FROM calendar_event WHERE id = $1 AND user_id = $2`, id, userId)
	if err != nil {
		err := database.StoreError("could not delete calendar event", err)
		log.Error(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *RepositoryImpl) FindEvents(ctx context.Context, userId string, q Query) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_event
			  WHERE user_id = $1
			    AND ($2::date IS NULL OR event_date >= $2)
			    AND ($3::date IS NULL OR event_date <= $3)
			    AND (cardinality($4::text[]) = 0 OR source = ANY ($4))
			  ORDER BY event_date, event_time NULLS LAST, title, id`

	var from, to pgtype.Date
	if q.From != nil {
		from = toPgDate(*q.From)
	}
	if q.To != nil {
		to = toPgDate(*q.To)
	}
	sources := make([]string, 0, len(q.Sources))
	for _, s := range q.Sources {
		sources = append(sources, string(s))
	}

	rows, err := r.getQueryer().Query(ctx, query, userId, from, to, sources)
	if err != nil {
		err := database.StoreError("could not query calendar events", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0, 10)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			err := database.StoreError("could not scan calendar event", err)
			log.Error(err)
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		err := database.StoreError("could not iterate calendar events", err)
		log.Error(err)
		return nil, err
	}
	rows.Close()

	manual := make([]*Event, 0, len(events))
	for i := range events {
		if events[i].Source == SourceManual {
			manual = append(manual, &events[i])
		}
	}
	if err := r.attachLinks(ctx, userId, manual); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *RepositoryImpl) FindByExternalId(ctx context.Context, userId string, source Source, externalId string) (Event, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_event
			  WHERE user_id = $1 AND source = $2 AND external_id = $3`
	event, err := scanEvent(r.getQueryer().QueryRow(ctx, query, userId, string(source), externalId))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrEventNotFound
		}
		err := database.StoreError("could not find event by external id", err)
		log.Error(err)
		return Event{}, err
	}
	return event, nil
}

func (r *RepositoryImpl) MarkLinksPending(ctx context.Context, userId string, provider Source, eventIds []string) error {
	if len(eventIds) == 0 {
		return nil
	}
	query := `INSERT INTO calendar_event_sync_link (event_id, user_id, provider, sync_status)
			  SELECT id, user_id, $3, 'pending' FROM calendar_event
			  WHERE user_id = $1 AND id = ANY ($2::uuid[])
			  ON CONFLICT (event_id, provider) DO UPDATE SET sync_status = 'pending'`
	_, err := r.getQueryer().Exec(ctx, query, userId, eventIds, string(provider))
	if err != nil {
		err := database.StoreError("could not mark sync links pending", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) SaveLink(ctx context.Context, userId string, eventId string, link SyncLink) error {
	query := `INSERT INTO calendar_event_sync_link (event_id, user_id, provider, external_id, sync_status, last_error, synced_at)
			  SELECT id, user_id, $3, $4, $5, $6, $7 FROM calendar_event WHERE id = $1 AND user_id = $2
			  ON CONFLICT (event_id, provider) DO UPDATE
			      SET external_id = CASE WHEN excluded.external_id = '' THEN calendar_event_sync_link.external_id
			                             ELSE excluded.external_id END,
			          sync_status = excluded.sync_status,
			          last_error  = excluded.last_error,
			          synced_at   = COALESCE(excluded.synced_at, calendar_event_sync_link.synced_at)`
	_, err := r.getQueryer().Exec(ctx, query,
		eventId, userId, string(link.Provider), link.ExternalId, string(link.Status), link.LastError, link.SyncedAt)
	if err != nil {
		err := database.StoreError("could not save sync link", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) HasLinkWithExternalId(ctx context.Context, userId string, provider Source, externalId string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM calendar_event_sync_link
			                 WHERE user_id = $1 AND provider = $2 AND external_id = $3)`
	var exists bool
	err := r.getQueryer().QueryRow(ctx, query, userId, string(provider), externalId).Scan(&exists)
	if err != nil {
		err := database.StoreError("could not check sync link", err)
		log.Error(err)
		return false, err
	}
	return exists, nil
}

func (r *RepositoryImpl) DeleteLinks(ctx context.Context, userId string, provider Source) (int, error) {
	tag, err := r.getQueryer().Exec(ctx,
		`DELETE FROM calendar_event_sync_link WHERE user_id = $1 AND provider = $2`, userId, string(provider))
	if err != nil {
		err := database.StoreError("could not delete sync links", err)
		log.Error(err)
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *RepositoryImpl) attachLinks(ctx context.Context, userId string, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	byId := make(map[string]*Event, len(events))
	ids := make([]string, 0, len(events))
	for _, e := range events {
		byId[e.Id] = e
		ids = append(ids, e.Id)
	}

	query := `SELECT event_id::text, provider, external_id, sync_status, last_error, synced_at
			  FROM calendar_event_sync_link
			  WHERE user_id = $1 AND event_id = ANY ($2::uuid[])
			  ORDER BY provider`
	rows, err := r.getQueryer().Query(ctx, query, userId, ids)
	if err != nil {
		err := database.StoreError("could not query sync links", err)
		log.Error(err)
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var eventId, provider, externalId, status, lastError string
		var syncedAt *time.Time
		if err := rows.Scan(&eventId, &provider, &externalId, &status, &lastError, &syncedAt); err != nil {
			err := database.StoreError("could not scan sync link", err)
			log.Error(err)
			return err
		}
		if e, ok := byId[eventId]; ok {
			e.Links = append(e.Links, SyncLink{
				Provider:   Source(provider),
				ExternalId: externalId,
				Status:     SyncStatus(status),
				LastError:  lastError,
				SyncedAt:   syncedAt,
			})
		}
	}
	return rows.Err()
}

func scanEvent(row pgx.Row) (Event, error) {
	var event Event
	var date pgtype.Date
	var clock pgtype.Time
	var category, source string
	var sourceId, externalId, syncStatus *string
	err := row.Scan(
		&event.Id,
		&event.UserId,
		&event.Title,
		&date,
		&clock,
		&category,
		&event.Description,
		&source,
		&sourceId,
		&externalId,
		&syncStatus,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return Event{}, err
	}
	event.Date = civil.DateOf(date.Time)
	event.Time = fromPgTime(clock)
	event.Category = Category(category)
	event.Source = Source(source)
	if sourceId != nil {
		event.SourceId = *sourceId
	}
	if externalId != nil {
		event.ExternalId = *externalId
	}
	if syncStatus != nil {
		event.SyncStatus = SyncStatus(*syncStatus)
	}
	return event, nil
}

func toPgDate(d civil.Date) pgtype.Date {
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func toPgTime(t *civil.Time) pgtype.Time {
	if t == nil {
		return pgtype.Time{}
	}
	micros := (int64(t.Hour)*3600+int64(t.Minute)*60+int64(t.Second))*1_000_000 + int64(t.Nanosecond/1000)
	return pgtype.Time{Microseconds: micros, Valid: true}
}

func fromPgTime(t pgtype.Time) *civil.Time {
	if !t.Valid {
		return nil
	}
	seconds := t.Microseconds / 1_000_000
	ct := civil.Time{
		Hour:       int(seconds / 3600),
		Minute:     int(seconds % 3600 / 60),
		Second:     int(seconds % 60),
		Nanosecond: int(t.Microseconds%1_000_000) * 1000,
	}
	return &ct
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Repository = (*RepositoryImpl)(nil)

