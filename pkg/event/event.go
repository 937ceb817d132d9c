package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

type Category string

const (
	CategoryAcademic Category = "academic"
	CategoryPersonal Category = "personal"
	CategoryWellness Category = "wellness"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryAcademic, CategoryPersonal, CategoryWellness:
		return true
	}
	return false
}

// Source tags where an event comes from and decides whether it can be edited.
type Source string

const (
	SourceManual     Source = "manual"
	SourceAssignment Source = "assignment"
	SourceWorkout    Source = "workout"
	SourceMeal       Source = "meal"
	SourceSleep      Source = "sleep"
	SourceGoogle     Source = "google"
	SourceApple      Source = "apple"
)

// Derived reports whether events of this source are synthesized on read from another domain's records.
func (s Source) Derived() bool {
	switch s {
	case SourceAssignment, SourceWorkout, SourceMeal, SourceSleep:
		return true
	}
	return false
}

// Imported reports whether events of this source were pulled from an external provider.
func (s Source) Imported() bool {
	return s == SourceGoogle || s == SourceApple
}

type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPending SyncStatus = "pending"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncLink maps a manual event to its copy in one external provider.
type SyncLink struct {
	Provider   Source
	ExternalId string
	Status     SyncStatus
	LastError  string
	SyncedAt   *time.Time
}

type Event struct {
	Id          string
	UserId      string
	Title       string
	Date        civil.Date
	Time        *civil.Time
	Category    Category
	Description string
	Source      Source
	SourceId    string
	// ExternalId and SyncStatus are set on events imported from a provider.
	ExternalId string
	SyncStatus SyncStatus
	// Links holds the push state of a manual event, one entry per provider.
	Links     []SyncLink
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e Event) Link(provider Source) (SyncLink, bool) {
	for _, l := range e.Links {
		if l.Provider == provider {
			return l, true
		}
	}
	return SyncLink{}, false
}

var (
	ErrValidation      = errors.New("validation failed")
	ErrInvalidCategory = fmt.Errorf("%w: category must be one of academic, personal, wellness", ErrValidation)
	ErrEmptyTitle      = fmt.Errorf("%w: title is required", ErrValidation)
	ErrInvalidDate     = fmt.Errorf("%w: date must be in YYYY-MM-DD format", ErrValidation)
	ErrInvalidTime     = fmt.Errorf("%w: time must be in HH:mm format", ErrValidation)

	ErrEventNotFound   = errors.New("event not found")
	ErrNotOwner        = errors.New("event is owned by another user")
	ErrImmutableSource = errors.New("only manual events can be modified")
)

const timeLayout = "15:04"

func ParseDate(value string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(value))
	if err != nil || !d.IsValid() {
		return civil.Date{}, ErrInvalidDate
	}
	return d, nil
}

// ParseTime parses a HH:mm clock time.
func ParseTime(value string) (civil.Time, error) {
	t, err := time.Parse(timeLayout, strings.TrimSpace(value))
	if err != nil {
		return civil.Time{}, ErrInvalidTime
	}
	return civil.TimeOf(t), nil
}

func FormatTime(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// DerivedId is the stable id of a synthesized event.
func DerivedId(source Source, sourceId string) string {
	return string(source) + "-" + sourceId
}

// isDerivedId reports whether id has the shape produced by DerivedId.
func isDerivedId(id string) bool {
	prefix, rest, found := strings.Cut(id, "-")
	return found && rest != "" && Source(prefix).Derived()
}
