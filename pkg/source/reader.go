package source

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/campusflow/campusflow/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Reader interface {
	Assignments(ctx context.Context, userId string, r Range) ([]Assignment, error)
	Workouts(ctx context.Context, userId string, r Range) ([]Workout, error)
	Meals(ctx context.Context, userId string, r Range) ([]Meal, error)
	SleepLogs(ctx context.Context, userId string, r Range) ([]SleepLog, error)
}

type ReaderImpl struct {
	db *pgxpool.Pool
}

func NewReader(db *pgxpool.Pool) *ReaderImpl {
	return &ReaderImpl{db: db}
}

func (s *ReaderImpl) Assignments(ctx context.Context, userId string, r Range) ([]Assignment, error) {
	query := `SELECT id, title, course, due_date, due_time, description FROM assignment
			  WHERE user_id = $1 AND ($2::date IS NULL OR due_date >= $2) AND ($3::date IS NULL OR due_date <= $3)`
	return readAll(ctx, s.db, "assignments", query, userId, r, func(rows pgx.Rows) (Assignment, error) {
		var a Assignment
		var date pgtype.Date
		var at pgtype.Time
		err := rows.Scan(&a.Id, &a.Title, &a.Course, &date, &at, &a.Description)
		a.DueDate = civil.DateOf(date.Time)
		a.DueTime = clockOf(at)
		return a, err
	})
}

func (s *ReaderImpl) Workouts(ctx context.Context, userId string, r Range) ([]Workout, error) {
	query := `SELECT id, workout_type, workout_date, workout_time, duration_minutes, notes FROM workout
			  WHERE user_id = $1 AND ($2::date IS NULL OR workout_date >= $2) AND ($3::date IS NULL OR workout_date <= $3)`
	return readAll(ctx, s.db, "workouts", query, userId, r, func(rows pgx.Rows) (Workout, error) {
		var w Workout
		var date pgtype.Date
		var at pgtype.Time
		err := rows.Scan(&w.Id, &w.Type, &date, &at, &w.DurationMinutes, &w.Notes)
		w.Date = civil.DateOf(date.Time)
		w.Time = clockOf(at)
		return w, err
	})
}

func (s *ReaderImpl) Meals(ctx context.Context, userId string, r Range) ([]Meal, error) {
	query := `SELECT id, meal_type, name, meal_date, meal_time, calories FROM meal
			  WHERE user_id = $1 AND ($2::date IS NULL OR meal_date >= $2) AND ($3::date IS NULL OR meal_date <= $3)`
	return readAll(ctx, s.db, "meals", query, userId, r, func(rows pgx.Rows) (Meal, error) {
		var m Meal
		var date pgtype.Date
		var at pgtype.Time
		err := rows.Scan(&m.Id, &m.MealType, &m.Name, &date, &at, &m.Calories)
		m.Date = civil.DateOf(date.Time)
		m.Time = clockOf(at)
		return m, err
	})
}

func (s *ReaderImpl) SleepLogs(ctx context.Context, userId string, r Range) ([]SleepLog, error) {
	query := `SELECT id, sleep_date, bed_time, wake_time, hours, quality FROM sleep_log
			  WHERE user_id = $1 AND ($2::date IS NULL OR sleep_date >= $2) AND ($3::date IS NULL OR sleep_date <= $3)`
	return readAll(ctx, s.db, "sleep logs", query, userId, r, func(rows pgx.Rows) (SleepLog, error) {
		var l SleepLog
		var date pgtype.Date
		var bed, wake pgtype.Time
		err := rows.Scan(&l.Id, &date, &bed, &wake, &l.Hours, &l.Quality)
		l.Date = civil.DateOf(date.Time)
		l.BedTime = clockOf(bed)
		l.WakeTime = clockOf(wake)
		return l, err
	})
}

func readAll[T any](ctx context.Context, db *pgxpool.Pool, what string, query string, userId string, r Range,
	scan func(pgx.Rows) (T, error)) ([]T, error) {
	var from, to pgtype.Date
	if r.From != nil {
		from = pgtype.Date{Time: r.From.In(time.UTC), Valid: true}
	}
	if r.To != nil {
		to = pgtype.Date{Time: r.To.In(time.UTC), Valid: true}
	}

	rows, err := db.Query(ctx, query, userId, from, to)
	if err != nil {
		err := database.StoreError("could not query "+what, err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	result := make([]T, 0, 10)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			err := database.StoreError("could not scan "+what, err)
			log.Error(err)
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		err := database.StoreError("could not read "+what, err)
		log.Error(err)
		return nil, err
	}
	return result, nil
}

func clockOf(t pgtype.Time) *civil.Time {
	if !t.Valid {
		return nil
	}
	seconds := t.Microseconds / 1_000_000
	ct := civil.Time{Hour: int(seconds / 3600), Minute: int(seconds % 3600 / 60), Second: int(seconds % 60)}
	return &ct
}
