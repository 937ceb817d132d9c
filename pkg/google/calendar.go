package google

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/campusflow/campusflow/pkg/connector"
	"github.com/campusflow/campusflow/pkg/event"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"
)

const (
	originProperty   = "campusflowEventId"
	categoryProperty = "campusflowCategory"
)

// eventIdNamespace scopes the Google event ids derived from local event ids.
var eventIdNamespace = uuid.MustParse("8b1e4f2a-6c3d-4e57-9a0b-d2c4f6e8a913")

var base32hex = base32.HexEncoding.WithPadding(base32.NoPadding)

// eventIdOf derives the Google event id of a local event. Google ids use the base32hex
// alphabet in lower case.
func eventIdOf(e event.Event) string {
	if e.Id == "" {
		return ""
	}
	u := uuid.NewSHA1(eventIdNamespace, []byte(e.Id))
	return strings.ToLower(base32hex.EncodeToString(u[:]))
}

type CalendarItem struct {
	ID      string
	Summary string
	Primary bool
}

// Calendar is one Google calendar opened with a user's token pair.
type Calendar struct {
	service    *gcal.Service
	calendarId string
	adapter    *Adapter
}

// Insert creates the remote copy under an id derived from the local event, so a repeated
// insert of the same event finds the first copy and overwrites it.
func (c *Calendar) Insert(ctx context.Context, e event.Event) (string, error) {
	log.Debugf("Adding event %s to calendar: %s", e.Id, c.calendarId)
	ge := c.toGoogleEvent(e)
	ge.Id = eventIdOf(e)
	result, err := c.service.Events.Insert(c.calendarId, ge).Context(ctx).Do()
	if err == nil {
		return result.Id, nil
	}
	if ge.Id != "" && isConflict(err) {
		log.Debugf("Google event %s already exists, overwriting it", ge.Id)
		updateErr := c.Update(ctx, ge.Id, e)
		if updateErr == nil {
			return ge.Id, nil
		}
		if !errors.Is(updateErr, connector.ErrRemoteGone) {
			return "", updateErr
		}
		// the id is held by a purged event
		ge.Id = ""
		result, err = c.service.Events.Insert(c.calendarId, ge).Context(ctx).Do()
		if err == nil {
			return result.Id, nil
		}
	}
	err = fmt.Errorf("unable to insert event in Google Calendar: %w", err)
	log.Error(err)
	return "", classify(ctx, err)
}

func (c *Calendar) Update(ctx context.Context, externalId string, e event.Event) error {
	_, err := c.service.Events.Update(c.calendarId, externalId, c.toGoogleEvent(e)).Context(ctx).Do()
	if err != nil {
		err := fmt.Errorf("unable to update event in Google Calendar: %w", err)
		log.Error(err)
		return classify(ctx, err)
	}
	return nil
}

// List returns single instances of every event in the pull window.
func (c *Calendar) List(ctx context.Context) ([]connector.RemoteEvent, error) {
	now := c.adapter.clock.Now().In(c.adapter.location)
	from := now.AddDate(0, 0, -c.adapter.pastDays)
	to := now.AddDate(0, 0, c.adapter.futureDays)

	var events []connector.RemoteEvent
	err := c.service.Events.List(c.calendarId).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Pages(ctx, func(page *gcal.Events) error {
			for _, item := range page.Items {
				if e, ok := c.fromGoogleEvent(item); ok {
					events = append(events, e)
				}
			}
			return nil
		})
	if err != nil {
		err := fmt.Errorf("unable to retrieve events from Google Calendar: %w", err)
		log.Error(err)
		return nil, classify(ctx, err)
	}
	return events, nil
}

func (c *Calendar) toGoogleEvent(e event.Event) *gcal.Event {
	ge := &gcal.Event{
		Status:      "confirmed",
		Summary:     e.Title,
		Description: e.Description,
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{
				originProperty:   e.Id,
				categoryProperty: string(e.Category),
			},
		},
	}
	if e.Time == nil {
		ge.Start = &gcal.EventDateTime{Date: e.Date.String()}
		ge.End = &gcal.EventDateTime{Date: e.Date.AddDays(1).String()}
		return ge
	}
	loc := c.adapter.location
	start := time.Date(e.Date.Year, e.Date.Month, e.Date.Day, e.Time.Hour, e.Time.Minute, 0, 0, loc)
	ge.Start = &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: loc.String()}
	ge.End = &gcal.EventDateTime{DateTime: start.Add(c.adapter.duration).Format(time.RFC3339), TimeZone: loc.String()}
	return ge
}

func (c *Calendar) fromGoogleEvent(item *gcal.Event) (connector.RemoteEvent, bool) {
	if item == nil || item.Start == nil || item.Status == "cancelled" {
		return connector.RemoteEvent{}, false
	}
	e := event.Event{
		Title:       item.Summary,
		Description: item.Description,
		Category:    event.CategoryPersonal,
		ExternalId:  item.Id,
	}
	if e.Title == "" {
		e.Title = "(no title)"
	}
	switch {
	case item.Start.Date != "":
		d, err := civil.ParseDate(item.Start.Date)
		if err != nil {
			log.Warnf("ignoring Google event %s with invalid date %q", item.Id, item.Start.Date)
			return connector.RemoteEvent{}, false
		}
		e.Date = d
	case item.Start.DateTime != "":
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			log.Warnf("ignoring Google event %s with invalid start %q", item.Id, item.Start.DateTime)
			return connector.RemoteEvent{}, false
		}
		start = start.In(c.adapter.location)
		e.Date = civil.DateOf(start)
		e.Time = &civil.Time{Hour: start.Hour(), Minute: start.Minute()}
	default:
		return connector.RemoteEvent{}, false
	}

	var origin string
	if item.ExtendedProperties != nil {
		origin = item.ExtendedProperties.Private[originProperty]
		if category := event.Category(item.ExtendedProperties.Private[categoryProperty]); category.Valid() {
			e.Category = category
		}
	}
	return connector.RemoteEvent{Event: e, OriginId: origin}, true
}
