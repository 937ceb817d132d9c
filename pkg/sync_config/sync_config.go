package sync_config

import (
	"errors"
	"fmt"
	"time"

	"github.com/campusflow/campusflow/pkg/connector"
)

type SyncFrequency string

const (
	Realtime SyncFrequency = "realtime"
	Hourly   SyncFrequency = "hourly"
	Daily    SyncFrequency = "daily"
)

func (f SyncFrequency) Valid() bool {
	switch f {
	case Realtime, Hourly, Daily:
		return true
	}
	return false
}

var (
	ErrConfigNotFound      = errors.New("sync config not found")
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidFrequency    = fmt.Errorf("invalid sync frequency: must be one of realtime, hourly, daily")
)

type EventSources struct {
	Assignments bool
	Workouts    bool
	Meals       bool
	Sleep       bool
}

type GoogleCalendar struct {
	Connected   bool
	CalendarId  string
	LastSync    *time.Time
	SyncEnabled bool
}

type AppleCalendar struct {
	Connected    bool
	ServerUrl    string
	CalendarName string
	LastSync     *time.Time
	SyncEnabled  bool
}

// CalendarSyncConfig is the per user sync record. Credentials are stored separately and are
// never part of this type.
type CalendarSyncConfig struct {
	UserId         string
	GoogleCalendar GoogleCalendar
	AppleCalendar  AppleCalendar
	EventSources   EventSources
	SyncFrequency  SyncFrequency
}

func DefaultConfig(userId string) CalendarSyncConfig {
	return CalendarSyncConfig{
		UserId:        userId,
		SyncFrequency: Daily,
	}
}

// Connected reports whether provider has stored credentials.
func (c CalendarSyncConfig) Connected(provider connector.Provider) bool {
	switch provider {
	case connector.Google:
		return c.GoogleCalendar.Connected
	case connector.Apple:
		return c.AppleCalendar.Connected
	}
	return false
}

func (c CalendarSyncConfig) SyncEnabled(provider connector.Provider) bool {
	switch provider {
	case connector.Google:
		return c.GoogleCalendar.Connected && c.GoogleCalendar.SyncEnabled
	case connector.Apple:
		return c.AppleCalendar.Connected && c.AppleCalendar.SyncEnabled
	}
	return false
}

// EventSourcesPatch changes only the toggles that are set.
type EventSourcesPatch struct {
	Assignments *bool
	Workouts    *bool
	Meals       *bool
	Sleep       *bool
}

type Patch struct {
	EventSources  *EventSourcesPatch
	SyncFrequency *SyncFrequency
}

func (p Patch) apply(cfg CalendarSyncConfig) CalendarSyncConfig {
	if p.EventSources != nil {
		s := p.EventSources
		if s.Assignments != nil {
			cfg.EventSources.Assignments = *s.Assignments
		}
		if s.Workouts != nil {
			cfg.EventSources.Workouts = *s.Workouts
		}
		if s.Meals != nil {
			cfg.EventSources.Meals = *s.Meals
		}
		if s.Sleep != nil {
			cfg.EventSources.Sleep = *s.Sleep
		}
	}
	if p.SyncFrequency != nil {
		cfg.SyncFrequency = *p.SyncFrequency
	}
	return cfg
}
